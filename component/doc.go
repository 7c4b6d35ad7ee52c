// Package component provides the component infrastructure for barstreams:
// discovery, registration, port description, config schemas, and lifecycle.
//
// # Overview
//
// Every runtime part (the HTTP and WebSocket inputs, the history processor,
// the file output, the object store) is a component. A component is created
// by a Factory from raw JSON config, describes itself through Discoverable,
// and is driven through LifecycleComponent by the component manager.
//
// # Registration
//
// Registration is explicit. Each component package exports a
// Register(*Registry) error function and componentregistry.RegisterAll calls
// them in turn; nothing registers itself from init.
//
//	func Register(registry *component.Registry) error {
//		return registry.RegisterWithConfig(component.RegistrationConfig{
//			Name:        "file",
//			Factory:     CreateOutput,
//			Schema:      schema,
//			Type:        "output",
//			Protocol:    "file",
//			Domain:      "storage",
//			Description: "Writes artifacts into a directory",
//			Version:     "1.0.0",
//		})
//	}
//
// # Config Schemas
//
// Config structs carry schema tags next to their json tags and build their
// ConfigSchema once at init:
//
//	type Config struct {
//		Workers int `json:"workers" schema:"type:int,description:Worker count,min:1,default:4"`
//	}
//
//	var schema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
//
// Factories decode config with SafeUnmarshal, which bounds document size
// and depth, rejects control characters, and calls Validate on the target
// when it implements Validatable.
//
// # Ports
//
// Ports describe a component's wiring: NATS subjects, listen addresses,
// directories, and object store buckets. Exclusive ports (listen addresses)
// are tracked by the Registry so two instances cannot bind the same one.
// Port config is declared with PortDefinition lists and merged over a
// component's defaults with MergePortConfigs.
//
// # Lifecycle
//
// Initialize performs setup without I/O. Start receives the context that
// bounds the component's background work. Stop waits at most its timeout
// and must be safe to call on a component that never started.
package component
