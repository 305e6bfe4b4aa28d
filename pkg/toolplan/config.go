package toolplan

import (
	"io"
	"time"

	"github.com/ZanzyTHEbar/toolplan/internal/logging"
)

// Config holds the configuration options for a Planner.
type Config struct {
	// Reject catalogs whose produces/consumes graph has a cycle
	ValidateCatalog bool

	// Optional YAML catalog applied over the base catalog
	CatalogFile string

	// Optional YAML affordance rules replacing the built-in table
	RulesFile string

	// Execution settings, used once tools are registered with WithTools.
	MaxWorkers  int           // concurrent calls per batch
	MaxRetries  int           // retries for calls without side effects
	RetryDelay  time.Duration // pause between retries
	CallTimeout time.Duration // per-call timeout when a spec sets none, 0 disables
	GroupLimits map[string]int

	// Caching of side effect free results. Zero TTL disables the cache; a
	// CacheFile persists it across restarts.
	CacheTTL  time.Duration
	CacheFile string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ValidateCatalog: true,
		MaxWorkers:      5,
		MaxRetries:      2,
		RetryDelay:      500 * time.Millisecond,
		CallTimeout:     5 * time.Minute,
	}
}

// NewLogger returns the JSON line logger used by default, writing to w.
func NewLogger(w io.Writer, debug bool) Logger {
	return logging.New(w, debug)
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return logging.Nop()
}
