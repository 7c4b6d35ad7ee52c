// Package componentregistry registers every barstreams component factory.
package componentregistry

import (
	"errors"

	"github.com/c360/barstreams/component"
	pkgerrors "github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/input/httpupload"
	websocketinput "github.com/c360/barstreams/input/websocket"
	"github.com/c360/barstreams/output/file"
	"github.com/c360/barstreams/processor/history"
	"github.com/c360/barstreams/storage/objectstore"
)

// Register registers the barstreams factories with the provided registry:
//
//   - WebSocket input (batch envelopes)
//   - HTTP upload input (POST /batches)
//   - History processor (CSV to JSON and XML artifacts)
//   - File output (one file per artifact)
//   - ObjectStore storage (NATS JetStream)
func Register(registry *component.Registry) error {
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	registrations := []struct {
		name     string
		register func(*component.Registry) error
	}{
		{"WebSocket input", websocketinput.Register},
		{"HTTP upload input", httpupload.Register},
		{"history processor", history.Register},
		{"file output", file.Register},
		{"ObjectStore storage", objectstore.Register},
	}

	for _, r := range registrations {
		if err := r.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", r.name+" component registration")
		}
	}
	return nil
}
