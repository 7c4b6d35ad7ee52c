package history

import "github.com/c360/barstreams/component"

// Register registers the history processor factory with the registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "history",
		Factory:     NewProcessor,
		Schema:      historySchema,
		Type:        "processor",
		Protocol:    "csv",
		Domain:      "market",
		Description: "Bitcoin OHLC history CSV to per-record JSON and XML artifacts",
		Version:     "1.0.0",
	})
}
