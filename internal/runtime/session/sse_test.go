package session

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (hs *harness) openSSE(t *testing.T) (*bufio.Reader, io.Closer) {
	t.Helper()
	resp, err := http.Get(hs.server.URL + "/sse")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	return bufio.NewReader(resp.Body), resp.Body
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := r.ReadString('\n')
		if err != nil {
			errs <- err
			return
		}
		lines <- line
	}()
	select {
	case line := <-lines:
		return line
	case err := <-errs:
		t.Fatalf("read failed: %v", err)
	case <-time.After(waitFor):
		t.Fatal("timed out reading SSE stream")
	}
	return ""
}

func TestSSEStreamsEventsAsDataLines(t *testing.T) {
	hs := newHarness(t, nil)
	reader, _ := hs.openSSE(t)

	ev := message("m1", "s1")
	hs.publish(t, ev)

	assert.Equal(t, "data: "+string(frameOf(t, ev))+"\n", readLine(t, reader))
	assert.Equal(t, "\n", readLine(t, reader))
}

func TestSSEIsNotFiltered(t *testing.T) {
	hs := newHarness(t, nil)
	reader, _ := hs.openSSE(t)
	sessions := hs.handler.Sessions()
	require.Len(t, sessions, 1)
	hs.registry.Subscribe(sessions[0].ID(), nil)

	hs.publish(t, message("scoped", "s1"))
	assert.True(t, strings.HasPrefix(readLine(t, reader), "data: "))
}

func TestSSEKeepAlive(t *testing.T) {
	hs := newHarness(t, func(o *Options) { o.HeartbeatInterval = 20 * time.Millisecond })
	reader, _ := hs.openSSE(t)

	assert.Equal(t, ": keep-alive\n", readLine(t, reader))
	assert.Equal(t, "\n", readLine(t, reader))
}

func TestSSEEndsOnShutdown(t *testing.T) {
	hs := newHarness(t, nil)
	reader, _ := hs.openSSE(t)
	require.Equal(t, 1, hs.handler.Active())

	hs.signal.Fire("test")

	done := make(chan error, 1)
	go func() {
		_, err := reader.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(waitFor):
		t.Fatal("SSE stream not closed on shutdown")
	}
	require.Eventually(t, func() bool { return hs.handler.Active() == 0 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, hs.hub.Subscribers())
}
