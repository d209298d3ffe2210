// Package ingest consumes a change stream over WebSocket and feeds each
// document or storage object change to the dispatcher.
package ingest

import (
	"errors"
	"time"
)

// Default values for WebSocket reconnection configuration.
const (
	DefaultBaseDelay        = 100 * time.Millisecond
	DefaultMaxDelay         = 30 * time.Second
	DefaultJitterFactor     = 0.5
	DefaultMaxRetryAttempts = 5
	DefaultSource           = "default"
	DefaultHandshakeTimeout = 10 * time.Second
)

// Configuration errors.
var (
	ErrEmptyURL        = errors.New("stream URL cannot be empty")
	ErrEmptySource     = errors.New("stream source name cannot be empty")
	ErrInvalidDelay    = errors.New("base delay must be positive")
	ErrInvalidMaxDelay = errors.New("max delay must be >= base delay")
	ErrInvalidJitter   = errors.New("jitter factor must be between 0 and 1")
)

// Config holds configuration for the change stream client.
type Config struct {
	// URL is the change stream WebSocket endpoint.
	URL string

	// Source names the stream in the cursor table, so several streams can
	// share one database.
	Source string

	// BaseDelay is the initial delay before the first reconnect attempt.
	BaseDelay time.Duration

	// MaxDelay caps the delay between reconnect attempts.
	MaxDelay time.Duration

	// JitterFactor is the fraction of delay to randomize (0.0 to 1.0).
	// 0.5 puts the actual delay in [delay*0.75, delay*1.25].
	JitterFactor float64

	// MaxRetryAttempts is the number of consecutive failed connects after
	// which every further failure is logged at error level. 0 disables it.
	MaxRetryAttempts int64
}

// DefaultConfig returns a Config with default backoff settings for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		Source:           DefaultSource,
		BaseDelay:        DefaultBaseDelay,
		MaxDelay:         DefaultMaxDelay,
		JitterFactor:     DefaultJitterFactor,
		MaxRetryAttempts: DefaultMaxRetryAttempts,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.URL == "" {
		return ErrEmptyURL
	}
	if c.Source == "" {
		return ErrEmptySource
	}
	if c.BaseDelay <= 0 {
		return ErrInvalidDelay
	}
	if c.MaxDelay < c.BaseDelay {
		return ErrInvalidMaxDelay
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return ErrInvalidJitter
	}
	return nil
}
