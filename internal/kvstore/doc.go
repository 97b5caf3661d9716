// Package kvstore provides the durable byte key/value store the device uses
// for its identity and cached configuration.
//
// SQLite is the production implementation, backed by the kv table from the
// embedded migrations. Memory serves tests and can be told to fail saves.
package kvstore
