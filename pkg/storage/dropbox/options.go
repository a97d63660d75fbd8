package dropbox

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultAPIURL is the Dropbox RPC endpoint
	DefaultAPIURL = "https://api.dropboxapi.com/2"

	// DefaultContentURL is the Dropbox content endpoint, for uploads and downloads
	DefaultContentURL = "https://content.dropboxapi.com/2"
)

// Option for the Dropbox store
type Option func(*dropbox)

// Logger for this store
func Logger(l *zap.Logger) Option {
	return func(d *dropbox) {
		if l != nil {
			d.l = l
		}
	}
}

// Root folder holding the objects. It defaults to the app folder root.
func Root(folder string) Option {
	return func(d *dropbox) {
		d.root = "/" + strings.Trim(folder, "/")
		if d.root == "/" {
			d.root = ""
		}
	}
}

// APIURL overrides the RPC endpoint
func APIURL(u string) Option {
	return func(d *dropbox) {
		if u != "" {
			d.apiURL = strings.TrimRight(u, "/")
		}
	}
}

// ContentURL overrides the content endpoint
func ContentURL(u string) Option {
	return func(d *dropbox) {
		if u != "" {
			d.contentURL = strings.TrimRight(u, "/")
		}
	}
}

// HTTPClient sets the base transport, before authentication is added
func HTTPClient(c *http.Client) Option {
	return func(d *dropbox) {
		if c != nil {
			d.base = c
		}
	}
}
