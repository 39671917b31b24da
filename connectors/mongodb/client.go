// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package mongodb opens the shared MongoDB client used by the access store,
// the audit sink and the catalog snapshot store.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// DefaultConnectTimeout bounds the initial connect and ping.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxPoolSize is the default maximum connection pool size
	DefaultMaxPoolSize = 100
	// DefaultMinPoolSize is the default minimum connection pool size
	DefaultMinPoolSize = 10
	// DefaultAppName is reported to the server for monitoring.
	DefaultAppName = "oddsgate"
)

// ErrDatabaseRequired is returned when Options.Database is empty.
var ErrDatabaseRequired = errors.New("mongodb: database name is required")

// Options configures Connect. Zero values fall back to the defaults above.
type Options struct {
	URI            string
	Database       string
	AppName        string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
}

// Client wraps a connected driver client and its selected database.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Connect dials MongoDB, verifies the primary with a ping and selects the
// database.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.Database == "" {
		return nil, ErrDatabaseRequired
	}

	clientOpts := options.Client().ApplyURI(opts.URI)

	maxPool := opts.MaxPoolSize
	if maxPool == 0 {
		maxPool = DefaultMaxPoolSize
	}
	minPool := opts.MinPoolSize
	if minPool == 0 {
		minPool = DefaultMinPoolSize
	}
	if minPool > maxPool {
		minPool = maxPool
	}
	clientOpts.SetMaxPoolSize(maxPool)
	clientOpts.SetMinPoolSize(minPool)

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	clientOpts.SetConnectTimeout(connectTimeout)
	clientOpts.SetServerSelectionTimeout(connectTimeout)
	if opts.SocketTimeout > 0 {
		clientOpts.SetSocketTimeout(opts.SocketTimeout)
	}

	appName := opts.AppName
	if appName == "" {
		appName = DefaultAppName
	}
	clientOpts.SetAppName(appName)
	clientOpts.SetRetryWrites(true)
	clientOpts.SetRetryReads(true)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}

	return &Client{
		client:   client,
		database: client.Database(opts.Database),
		dbName:   opts.Database,
	}, nil
}

// Database returns the selected database handle.
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns a handle for name in the selected database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Ping checks the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// ServerVersion reports the server's version string, for the health page.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	var info bson.M
	if err := c.database.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&info); err != nil {
		return "", err
	}
	v, _ := info["version"].(string)
	return v, nil
}

// Disconnect closes the client, bounded by a 10 second deadline.
func (c *Client) Disconnect(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongodb: disconnect: %w", err)
	}
	return nil
}
