package session

import (
	"errors"
	"net/http"

	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
	"github.com/drblury/fluxnotify/internal/runtime/metrics"
)

var (
	sseDataPrefix = []byte("data: ")
	sseEventEnd   = []byte("\n\n")
	sseKeepAlive  = []byte(": keep-alive\n\n")
)

// ServeSSE streams every hub event as a Server-Sent Event. The stream is
// not filtered; SSE clients cannot send subscribe commands.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	s, teardown, err := h.open(metrics.TransportSSE)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer teardown()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("Streaming unsupported by response writer", err, nil)
		return
	}

	write := func(chunks ...[]byte) error {
		if err := rc.SetWriteDeadline(h.writeDeadline()); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		for _, chunk := range chunks {
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		}
		return rc.Flush()
	}
	writeEvent := func(frame []byte) error {
		return write(sseDataPrefix, frame, sseEventEnd)
	}

	ticks, stopTicker := h.heartbeat()
	defer stopTicker()

	for {
		select {
		case <-h.opts.Shutdown.Done():
			return
		case <-r.Context().Done():
			return
		case <-ticks:
			if err := write(sseKeepAlive); err != nil {
				s.logger.Debug("Failed to write keep-alive", loggingpkg.LogFields{"error": err.Error()})
				return
			}
		case <-s.handle.Ready():
			keep, err := h.next(s, false, writeEvent)
			if errors.Is(err, errspkg.ErrClosed) {
				return
			}
			if !keep {
				s.logger.Debug("Failed to write event", loggingpkg.LogFields{"error": err.Error()})
				return
			}
		}
	}
}
