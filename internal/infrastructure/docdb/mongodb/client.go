package mongodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
)

// Client implements the docdb.Client interface for MongoDB.
type Client struct {
	client   *mongo.Client
	database *Database
}

// WriteConcern describes the acknowledgement requested for writes.
type WriteConcern struct {
	// W is a node count ("1") or a tag such as "majority". Empty leaves the server default.
	W       string
	Journal bool
	Timeout time.Duration
}

// ClientConfig holds MongoDB connection configuration.
type ClientConfig struct {
	URI          string
	DatabaseName string
	WriteConcern WriteConcern
}

// NewClient creates a new MongoDB client.
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if config.DatabaseName == "" {
		return nil, fmt.Errorf("database name is required")
	}

	clientOpts := options.Client().ApplyURI(config.URI)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	dbOpts := options.Database()
	if wc := buildWriteConcern(config.WriteConcern); wc != nil {
		dbOpts.SetWriteConcern(wc)
	}

	return &Client{
		client:   client,
		database: NewDatabase(client.Database(config.DatabaseName, dbOpts)),
	}, nil
}

// buildWriteConcern returns nil when nothing was configured.
func buildWriteConcern(cfg WriteConcern) *writeconcern.WriteConcern {
	if cfg.W == "" && !cfg.Journal && cfg.Timeout == 0 {
		return nil
	}

	wc := &writeconcern.WriteConcern{WTimeout: cfg.Timeout}
	if n, err := strconv.Atoi(cfg.W); err == nil {
		wc.W = n
	} else if cfg.W != "" {
		wc.W = cfg.W
	}
	if cfg.Journal {
		j := true
		wc.Journal = &j
	}
	return wc
}

// Database returns the database interface.
func (c *Client) Database() docdb.Database {
	return c.database
}

// ServerInfo runs buildInfo against the admin database.
func (c *Client) ServerInfo(ctx context.Context) (docdb.ServerInfo, error) {
	var build struct {
		Version string `bson:"version"`
	}
	res := c.client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}})
	if err := res.Decode(&build); err != nil {
		return docdb.ServerInfo{}, fmt.Errorf("mongodb buildInfo failed: %w", err)
	}
	return docdb.ServerInfo{Version: build.Version, Database: c.database.Name()}, nil
}

// Ping verifies the connection to MongoDB.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
