package event

import (
	"fmt"

	"github.com/drblury/fluxnotify/internal/runtime/jsoncodec"
)

// frame is the JSON shape pushed to clients: exactly one variant key set.
type frame struct {
	Message *Message `json:"message,omitempty"`
}

// Frame serializes a DomainEvent as a client frame, e.g. {"message":{...}}.
func Frame(ev DomainEvent) ([]byte, error) {
	var f frame
	switch e := ev.(type) {
	case Message:
		f.Message = &e
	case *Message:
		if e == nil {
			return nil, fmt.Errorf("fluxnotify: cannot frame nil message")
		}
		f.Message = e
	default:
		return nil, fmt.Errorf("fluxnotify: cannot frame event %T", ev)
	}
	return jsoncodec.Marshal(f)
}
