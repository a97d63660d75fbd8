package remote

import "go.uber.org/zap"

// Option for a remote provider
type Option func(*provider)

// Logger for this provider
func Logger(l *zap.Logger) Option {
	return func(p *provider) {
		if l != nil {
			p.l = l
		}
	}
}

// Prefix prepended to every chunk key on the store
func Prefix(prefix string) Option {
	return func(p *provider) {
		p.prefix = prefix
	}
}

// SkipExisting checks if a chunk is already stored before publishing it
func SkipExisting(enabled bool) Option {
	return func(p *provider) {
		p.skipExisting = enabled
	}
}

// VerifyHash checks that received chunks match their key
func VerifyHash(enabled bool) Option {
	return func(p *provider) {
		p.verifyHash = enabled
	}
}
