package relay

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultPort is the relay's listening port.
const DefaultPort = 1967

// Config holds configuration for the relay server.
type Config struct {
	// Addr is the address to listen on.
	// Default: ":1967".
	Addr string

	// IdealLanes bounds the worker-lane pool. Lanes are created lazily
	// up to this bound and never torn down before shutdown.
	// Default: runtime.GOMAXPROCS(0), minimum 1.
	IdealLanes int

	// ReadBufferSize is the per-connection read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteTimeout is the maximum time to wait for one outbound record
	// to reach the socket.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ShutdownTimeout is the maximum time Stop waits for connections
	// to drain.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// Logger receives the server's structured log events.
	// Default: slog.Default().
	Logger *slog.Logger

	// Registerer receives the server's Prometheus metrics. When nil a
	// private registry is used, so independent servers never collide.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:            fmt.Sprintf(":%d", DefaultPort),
		IdealLanes:      idealConcurrency(),
		ReadBufferSize:  4096,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// idealConcurrency returns the host's ideal lane count, at least 1.
func idealConcurrency() int {
	if n := runtime.GOMAXPROCS(0); n > 1 {
		return n
	}
	return 1
}

// withDefaults fills unset fields, returning a defensive copy.
func (c *Config) withDefaults() *Config {
	out := DefaultConfig()
	if c == nil {
		return out
	}
	clone := *c
	if clone.Addr == "" {
		clone.Addr = out.Addr
	}
	if clone.IdealLanes < 1 {
		clone.IdealLanes = out.IdealLanes
	}
	if clone.ReadBufferSize <= 0 {
		clone.ReadBufferSize = out.ReadBufferSize
	}
	if clone.WriteTimeout <= 0 {
		clone.WriteTimeout = out.WriteTimeout
	}
	if clone.ShutdownTimeout <= 0 {
		clone.ShutdownTimeout = out.ShutdownTimeout
	}
	if clone.Logger == nil {
		clone.Logger = slog.Default()
	}
	return &clone
}
