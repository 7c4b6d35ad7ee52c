package websocket

import "github.com/c360/barstreams/component"

// Register registers the WebSocket input component with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "websocket_input",
		Factory:     CreateInput,
		Schema:      websocketInputSchema,
		Type:        "input",
		Protocol:    "websocket",
		Domain:      "network",
		Description: "WebSocket server accepting CSV history batches with ack and nack replies",
		Version:     "1.0.0",
	})
}
