// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/rs/zerolog"
)

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves stream with the given configuration until ctx is
	// cancelled
	StartServer(ctx context.Context, stream IRecordStream, config ServerConfig, log zerolog.Logger) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
