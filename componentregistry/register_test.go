package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
)

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	assert.Equal(t,
		[]string{"file", "history", "httpupload", "objectstore", "websocket_input"},
		registry.ListComponentTypes())

	available := registry.ListAvailable()
	assert.Equal(t, "processor", available["history"].Type)
	assert.Equal(t, "storage", available["objectstore"].Type)
	assert.Equal(t, "input", available["httpupload"].Type)
}

func TestRegister_Twice(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))
	assert.Error(t, Register(registry))
}

func TestRegister_NilRegistry(t *testing.T) {
	err := Register(nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
