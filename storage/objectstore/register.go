package objectstore

import "github.com/c360/barstreams/component"

// Register registers the ObjectStore storage component with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "objectstore",
		Factory:     NewComponent,
		Schema:      objectstoreSchema,
		Type:        "storage",
		Protocol:    "objectstore",
		Domain:      "storage",
		Description: "Keeps artifacts and failed batches in a NATS ObjectStore bucket with a lookup API",
		Version:     "1.0.0",
	})
}
