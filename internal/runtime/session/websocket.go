package session

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
	"github.com/drblury/fluxnotify/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
	"github.com/drblury/fluxnotify/internal/runtime/metrics"
)

// maxCommandSize bounds a single inbound client frame.
const maxCommandSize = 64 << 10

// command is an inbound client frame. Unknown shapes decode to the zero
// value and are ignored.
type command struct {
	Subscribe *subscribeCommand `json:"subscribe"`
}

type subscribeCommand struct {
	StreamIDs []string `json:"stream_ids"`
}

func parseCommand(data []byte) (command, bool) {
	var cmd command
	if err := jsoncodec.Unmarshal(data, &cmd); err != nil {
		return command{}, false
	}
	if cmd.Subscribe == nil || cmd.Subscribe.StreamIDs == nil {
		return command{}, false
	}
	return cmd, true
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin accepts every origin unless AllowedOrigins is set. Requests
// without an Origin header come from non-browser clients and always pass.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}

// ServeWebSocket upgrades the request and runs the session until the client
// leaves, a write fails or the process shuts down.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	s, teardown, err := h.open(metrics.TransportWebSocket)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Debug("WebSocket upgrade failed", loggingpkg.LogFields{"error": err.Error()})
		teardown()
		return
	}
	defer func() {
		teardown()
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxCommandSize)
	if h.opts.HeartbeatInterval > 0 {
		pongWait := 2 * h.opts.HeartbeatInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	ticks, stopTicker := h.heartbeat()
	defer stopTicker()

	commands := h.receiveCommands(s, conn)
	write := func(frame []byte) error {
		_ = conn.SetWriteDeadline(h.writeDeadline())
		return conn.WriteMessage(websocket.TextMessage, frame)
	}

	for {
		select {
		case <-h.opts.Shutdown.Done():
			h.goingAway(s, conn)
			return
		case <-r.Context().Done():
			return
		case <-ticks:
			if err := conn.WriteControl(websocket.PingMessage, nil, h.writeDeadline()); err != nil {
				s.logger.Debug("Failed to write ping", loggingpkg.LogFields{"error": err.Error()})
				return
			}
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			h.apply(s, cmd)
		case <-s.handle.Ready():
			keep, err := h.next(s, h.opts.FilterStreams, write)
			if errors.Is(err, errspkg.ErrClosed) {
				h.goingAway(s, conn)
				return
			}
			if !keep {
				s.logger.Debug("Failed to write event", loggingpkg.LogFields{"error": err.Error()})
				return
			}
		}
	}
}

// receiveCommands reads client frames until the connection fails. The read
// unblocks when the session closes the socket.
func (h *Handler) receiveCommands(s *Session, conn *websocket.Conn) <-chan command {
	commands := make(chan command)

	go func() {
		defer close(commands)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					s.logger.Debug("WebSocket read failed", loggingpkg.LogFields{"error": err.Error()})
				}
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			cmd, ok := parseCommand(data)
			if !ok {
				s.logger.Trace("Ignoring unrecognized client frame", loggingpkg.LogFields{"size": len(data)})
				continue
			}
			select {
			case commands <- cmd:
			case <-s.done:
				return
			}
		}
	}()

	return commands
}

func (h *Handler) apply(s *Session, cmd command) {
	h.opts.Metrics.SubscribeCommand()
	h.opts.Registry.Subscribe(s.id, cmd.Subscribe.StreamIDs)
	s.logger.Debug("Stream subscription replaced", loggingpkg.LogFields{"stream_ids": cmd.Subscribe.StreamIDs})
}

func (h *Handler) goingAway(s *Session, conn *websocket.Conn) {
	s.setState(StateClosing)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := conn.WriteControl(websocket.CloseMessage, msg, h.writeDeadline()); err != nil {
		s.logger.Debug("Failed to write close frame", loggingpkg.LogFields{"error": err.Error()})
	}
}
