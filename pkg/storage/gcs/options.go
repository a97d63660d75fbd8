package gcs

import (
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Option is a functor to pass optional parameters to the gcs store
type Option func(*gcs)

// Logger specifies a logger for this store
func Logger(logger *zap.Logger) Option {
	return func(g *gcs) {
		if logger != nil {
			g.l = logger
		}
	}
}

// CredentialsFile points to a service account json file.
// By default, credentials are resolved from GOOGLE_APPLICATION_CREDENTIALS.
func CredentialsFile(file string) Option {
	return func(g *gcs) {
		if file != "" {
			g.clientOptions = append(g.clientOptions, option.WithCredentialsFile(file))
		}
	}
}

// Endpoint overrides the storage API endpoint, e.g. to reach an emulator
func Endpoint(endpoint string) Option {
	return func(g *gcs) {
		if endpoint != "" {
			g.clientOptions = append(g.clientOptions, option.WithEndpoint(endpoint), option.WithoutAuthentication())
		}
	}
}
