package component

import "fmt"

// NATSPort - NATS pub/sub
type NATSPort struct {
	Subject   string             `json:"subject"`
	Queue     string             `json:"queue,omitempty"`
	Interface *InterfaceContract `json:"interface,omitempty"`
}

// ResourceID returns unique identifier for NATS ports
func (n NATSPort) ResourceID() string {
	return fmt.Sprintf("nats:%s", n.Subject)
}

// IsExclusive returns false as multiple components can subscribe
func (n NATSPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (n NATSPort) Type() string {
	return "nats"
}

// NATSRequestPort - NATS request/reply
type NATSRequestPort struct {
	Subject   string             `json:"subject"`
	Timeout   string             `json:"timeout,omitempty"` // Duration string e.g. "1s", "500ms"
	Interface *InterfaceContract `json:"interface,omitempty"`
}

// ResourceID returns unique identifier for NATS request ports
func (n NATSRequestPort) ResourceID() string {
	return fmt.Sprintf("nats-request:%s", n.Subject)
}

// IsExclusive returns false as multiple components can handle requests
func (n NATSRequestPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (n NATSRequestPort) Type() string {
	return "nats-request"
}

// NetworkPort - TCP listener bindings (HTTP, WebSocket)
type NetworkPort struct {
	Protocol string `json:"protocol"` // "http", "websocket"
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// ResourceID returns unique identifier for network ports
func (n NetworkPort) ResourceID() string {
	return fmt.Sprintf("tcp:%s:%d", n.Host, n.Port)
}

// IsExclusive returns true as a listen address can only be bound once
func (n NetworkPort) IsExclusive() bool {
	return true
}

// Type returns the port type identifier
func (n NetworkPort) Type() string {
	return "network"
}

// FilePort - a directory artifacts are written into
type FilePort struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern,omitempty"`
}

// ResourceID returns unique identifier for file ports
func (f FilePort) ResourceID() string {
	return fmt.Sprintf("file:%s", f.Path)
}

// IsExclusive returns false; several writers may share a directory
func (f FilePort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (f FilePort) Type() string {
	return "file"
}

// ObjectStorePort - a JetStream object store bucket
type ObjectStorePort struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
}

// ResourceID returns unique identifier for object store ports
func (o ObjectStorePort) ResourceID() string {
	return fmt.Sprintf("objectstore:%s", o.Bucket)
}

// IsExclusive returns false; buckets are shared
func (o ObjectStorePort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (o ObjectStorePort) Type() string {
	return "objectstore"
}
