// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/tfrecord/pkg/api"     //nolint:depguard
	"github.com/ssargent/tfrecord/pkg/storage" //nolint:depguard
	"github.com/ssargent/tfrecord/pkg/store"   //nolint:depguard
)

// StreamOpener opens an indexed record stream
type StreamOpener func(config store.StreamConfig) (*store.Stream, *store.RecoveryResult, error)

// StagingOpener opens the staging database at path
type StagingOpener func(path string) (storage.Storage, error)

// Container holds all the dependencies for the application
type Container struct {
	serverFactory api.ServerFactory
	streamOpener  StreamOpener
	stagingOpener StagingOpener
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		serverFactory: api.NewServerFactory(),
		streamOpener:  OpenStream,
		stagingOpener: OpenStaging,
	}
}

// OpenStream creates and opens a stream, repairing a torn tail
func OpenStream(config store.StreamConfig) (*store.Stream, *store.RecoveryResult, error) {
	stream := store.NewStream(config)
	result, err := stream.Open()
	if err != nil {
		return nil, nil, err
	}
	return stream, result, nil
}

// OpenStaging opens the pebble-backed staging database
func OpenStaging(path string) (storage.Storage, error) {
	staging, err := storage.NewDefaultStorage(path)
	if err != nil {
		return nil, err
	}
	return staging, nil
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// GetStreamOpener returns the stream opener
func (c *Container) GetStreamOpener() StreamOpener {
	return c.streamOpener
}

// GetStagingOpener returns the staging opener
func (c *Container) GetStagingOpener() StagingOpener {
	return c.stagingOpener
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// SetStreamOpener allows overriding the stream opener (for testing)
func (c *Container) SetStreamOpener(opener StreamOpener) {
	c.streamOpener = opener
}

// SetStagingOpener allows overriding the staging opener (for testing)
func (c *Container) SetStagingOpener(opener StagingOpener) {
	c.stagingOpener = opener
}
