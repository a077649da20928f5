package docdb

import (
	"context"
)

// ServerInfo describes the server a Client is connected to.
type ServerInfo struct {
	Version  string `json:"version"`
	Database string `json:"database"`
}

// Client is a connection to a document server bound to a single database.
type Client interface {
	// Database returns the bound database.
	Database() Database

	// ServerInfo reports the server version and the bound database name.
	ServerInfo(ctx context.Context) (ServerInfo, error)

	// Ping verifies the database connection.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close(ctx context.Context) error
}
