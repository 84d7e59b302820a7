package runtime

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/fluxnotify/internal/runtime/jsoncodec"
)

func TestStatsEndpointReportsSessions(t *testing.T) {
	rs := startService(t, channelConfig(), ServiceDependencies{})
	rs.dial(t, "/api/notify/ws")
	require.Eventually(t, func() bool { return rs.svc.Stats().Sessions.WebSocket == 1 }, waitFor, 5*time.Millisecond)

	resp, body := rs.get(t, "/api/notify/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats RelayStats
	require.NoError(t, jsoncodec.Unmarshal([]byte(body), &stats))
	assert.Equal(t, "channel", stats.Source)
	assert.Equal(t, "notify-relay", stats.Durable)
	assert.Equal(t, 1, stats.Sessions.WebSocket)
	assert.Equal(t, 1, stats.Hub.Subscribers)
	assert.Equal(t, 1024, stats.Hub.Capacity)
	assert.Positive(t, stats.Load.Goroutines)
	assert.Positive(t, stats.Load.GoroutinesPerSession)
}

func TestStatsCORS(t *testing.T) {
	conf := channelConfig()
	conf.AllowedOrigins = []string{"https://console.example"}
	rs := startService(t, conf, ServiceDependencies{})

	req, err := http.NewRequest(http.MethodOptions, rs.base+"/api/notify/stats", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://CONSOLE.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://CONSOLE.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodDelete, rs.base+"/api/notify/stats", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAllowedCORSOrigin(t *testing.T) {
	svc := &Service{Conf: channelConfig()}
	assert.Equal(t, "*", svc.allowedCORSOrigin("https://a.example"), "empty allow list admits every origin")

	svc.Conf.AllowedOrigins = []string{"https://b.example"}
	assert.Empty(t, svc.allowedCORSOrigin("https://a.example"))
	assert.Equal(t, "https://b.example", svc.allowedCORSOrigin("https://B.example"))

	svc.Conf.AllowedOrigins = []string{"*"}
	assert.Equal(t, "*", svc.allowedCORSOrigin("https://a.example"))
	assert.Empty(t, svc.allowedCORSOrigin(""))
}
