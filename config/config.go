// Package config holds the caller-supplied settings for an embedded ember
// server. Loading these values from a file, environment, or remote source
// is left to the embedder; this package only defines the shape and the
// defaults.
package config

import "time"

// Config configures a listener, its connection pool, and the peripheral
// session/static-file components.
type Config struct {
	// Host and Port identify the listening endpoint. An empty Host binds
	// all interfaces.
	Host string
	Port uint16

	// ReadTimeout bounds how long a connection may sit waiting for the
	// next byte of a request before it is drained and closed.
	ReadTimeout time.Duration

	// MaxRequestSize bounds the total size of a request (request line +
	// headers + body). MaxMultipartSize is carried for embedders; no
	// component in this module reads it, so multipart bodies are bounded
	// only by MaxRequestSize.
	MaxRequestSize   int64
	MaxMultipartSize int64

	// MinConnections handlers are created eagerly when the pool starts.
	// MaxConnections is the hard cap; acquisitions beyond it are rejected.
	// CleanupInterval governs how often idle handlers above MinConnections
	// are reaped.
	MinConnections  int
	MaxConnections  int
	CleanupInterval time.Duration

	// Session cookie settings.
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieComment  string
	ExpirationTime time.Duration

	// Static file controller settings.
	DocRoot           string
	Encoding          string
	MaxAge            time.Duration
	MaxCachedFileSize int64
	CacheSize         int
	CacheTime         time.Duration
}

// Default returns the configuration used when the embedder supplies none,
// mirroring the defaults baked into the original settings-file format.
func Default() *Config {
	return &Config{
		ReadTimeout:       10 * time.Second,
		MaxRequestSize:    16 * 1024 * 1024,
		MinConnections:    4,
		MaxConnections:    1000,
		CleanupInterval:   2 * time.Second,
		CookieName:        "sessionid",
		ExpirationTime:    time.Hour,
		Encoding:          "UTF-8",
		MaxAge:            time.Minute,
		MaxCachedFileSize: 64 * 1024,
		CacheSize:         1000000,
		CacheTime:         time.Minute,
	}
}
