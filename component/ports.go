package component

// PortDefinition represents a port configuration from JSON
type PortDefinition struct {
	Name        string `json:"name"                  schema:"readonly,type:string,description:Port identifier"`
	Type        string `json:"type,omitempty"        schema:"readonly,type:string,description:Port type (nats nats-request objectstore)"`
	Subject     string `json:"subject,omitempty"     schema:"editable,type:string,description:NATS subject or bucket name"`
	Interface   string `json:"interface,omitempty"   schema:"readonly,type:string,description:Interface contract type"`
	Required    bool   `json:"required,omitempty"    schema:"readonly,type:bool,description:Whether port connection is required"`
	Description string `json:"description,omitempty" schema:"readonly,type:string,description:Human-readable port description"`
	Timeout     string `json:"timeout,omitempty"     schema:"editable,type:string,description:Request timeout for request/reply ports"`
}

// PortConfig represents port configuration in component config
type PortConfig struct {
	Inputs  []PortDefinition `json:"inputs,omitempty"`
	Outputs []PortDefinition `json:"outputs,omitempty"`
}

// Input returns the subject of the named input, or "".
func (pc *PortConfig) Input(name string) string {
	if pc == nil {
		return ""
	}
	return subjectOf(pc.Inputs, name)
}

// Output returns the subject of the named output, or "".
func (pc *PortConfig) Output(name string) string {
	if pc == nil {
		return ""
	}
	return subjectOf(pc.Outputs, name)
}

func subjectOf(defs []PortDefinition, name string) string {
	for _, d := range defs {
		if d.Name == name {
			return d.Subject
		}
	}
	return ""
}

// MergePortConfigs overlays configured definitions onto defaults by name.
// Definitions with no matching default are appended.
func MergePortConfigs(defaults []Port, overrides []PortDefinition, direction Direction) []Port {
	result := make([]Port, 0, len(defaults)+len(overrides))
	byName := make(map[string]PortDefinition, len(overrides))
	for _, o := range overrides {
		byName[o.Name] = o
	}

	for _, def := range defaults {
		if o, ok := byName[def.Name]; ok {
			result = append(result, BuildPortFromDefinition(o, direction))
			delete(byName, def.Name)
			continue
		}
		result = append(result, def)
	}

	for _, o := range overrides {
		if _, pending := byName[o.Name]; pending {
			result = append(result, BuildPortFromDefinition(o, direction))
		}
	}
	return result
}

// BuildPortFromDefinition creates a Port from a PortDefinition
func BuildPortFromDefinition(def PortDefinition, direction Direction) Port {
	port := Port{
		Name:        def.Name,
		Direction:   direction,
		Required:    def.Required,
		Description: def.Description,
	}

	var iface *InterfaceContract
	if def.Interface != "" {
		iface = &InterfaceContract{Type: def.Interface, Version: "v1"}
	}

	switch def.Type {
	case "nats-request":
		timeout := def.Timeout
		if timeout == "" {
			timeout = "1s"
		}
		port.Config = NATSRequestPort{Subject: def.Subject, Timeout: timeout, Interface: iface}
	case "objectstore":
		port.Config = ObjectStorePort{Bucket: def.Subject}
	default:
		port.Config = NATSPort{Subject: def.Subject, Interface: iface}
	}

	return port
}

// PortsFromDefinitions builds one Port per definition.
func PortsFromDefinitions(defs []PortDefinition, direction Direction) []Port {
	ports := make([]Port, 0, len(defs))
	for _, d := range defs {
		ports = append(ports, BuildPortFromDefinition(d, direction))
	}
	return ports
}
