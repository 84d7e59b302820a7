/*
Package runtime assembles the notification relay.

# Data flow

	source.Consumer -> relay.Relay -> hub.Hub -> session.Handler -> clients

The relay takes one raw message at a time from the bound source, decodes it,
publishes the resulting event to the hub and only then acknowledges the
message. Every session holds its own hub handle and writes frames to its
client at its own pace.

# Service (service.go)

Service owns the HTTP servers and the shutdown sequence. Routes live under
Config.PathPrefix:
  - GET  /notify/ws      WebSocket sessions
  - GET  /notify/        Server-Sent Events sessions (also /notify/sse)
  - POST /notify/events  in-process ingest, only for injectable sources
  - /notify/stats        JSON snapshot of hub, sessions and relay load
  - GET  /healthz        liveness
  - GET  /metrics        Prometheus, when enabled

Shutdown fires the process-wide signal first, so every WebSocket gets a
going-away close frame, then waits for sessions, stops the servers and
closes the hub and the source.

# Sub-packages

  - config: Config, defaults and validation
  - errors: error taxonomy
  - event: wire decoding, encoding and client frames
  - hub: bounded broadcast ring buffer
  - registry: per-connection stream interests
  - session: WebSocket and SSE sessions
  - shutdown: one-shot shutdown signal
  - source: event source adapters
  - relay: consume loop
  - metrics, logging, ids, jsoncodec: ambient support
*/
package runtime
