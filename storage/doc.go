// Package storage defines the key-value contract shared by storage backends.
//
// Keys are hierarchical by convention:
//
//	history/json/bitstampUSD1.json
//	history/failure/broken.csv
//
// which lets a backend list one format or one batch family by prefix. The
// objectstore package implements Store on NATS JetStream ObjectStore.
//
// KeyGenerator decides where a received message lands. JoinKey builds keys
// without doubled or stray slashes:
//
//	key := storage.JoinKey("history", "json", "bitstampUSD1.json")
package storage
