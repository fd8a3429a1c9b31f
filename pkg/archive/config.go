package archive

import "time"

// SettingsProvider is supplied by the host process. It mirrors the minimal
// configuration surface a host needs: a data location (a directory, or the
// literal ":memory:" for a single ephemeral shard), a shard count, and a
// derived path for the external full-text index.
type SettingsProvider interface {
	DataLocation() string
	Backends() int
	FulltextFile() string
}

// Config holds the resolved, validated settings used to open a [Store].
// Build one from a host's [SettingsProvider] with [ConfigFromSettings], or
// construct one directly for tests.
type Config struct {
	// DataLocation is the directory holding shard files, or ":memory:" for
	// a single ephemeral in-memory shard.
	DataLocation string

	// Backends is the shard count N, 1..256. Zero defaults to 1.
	Backends int

	// FulltextFile is the host's derived path for an external full-text
	// index. [Open] does not read it: meta-tag updates always go to the
	// in-module FTS5 table (see fulltext.go), whatever its value.
	FulltextFile string

	// BusyTimeout is the SQLite busy_timeout pragma applied to every
	// connection. Defaults to 100ms.
	BusyTimeout time.Duration

	// OptimizeInterval is how often the periodic optimizer runs PRAGMA
	// optimize against every shard. Defaults to 3 hours.
	OptimizeInterval time.Duration

	// ReadOnlyUser is the reserved login for which every mutating
	// operation fails with KindAuth. Defaults to "viewonly".
	ReadOnlyUser string
}

const (
	defaultBusyTimeout      = 100 * time.Millisecond
	defaultOptimizeInterval = 3 * time.Hour
	defaultReadOnlyUser     = "viewonly"
	defaultCacheSizeKiB     = -20000
	defaultPageSize         = 65536
)

// ConfigFromSettings builds a [Config] from a host-supplied
// [SettingsProvider], applying the package's default settings.
func ConfigFromSettings(s SettingsProvider) Config {
	backends := s.Backends()
	if backends <= 0 {
		backends = 1
	}

	return Config{
		DataLocation:     s.DataLocation(),
		Backends:         backends,
		FulltextFile:     s.FulltextFile(),
		BusyTimeout:      defaultBusyTimeout,
		OptimizeInterval: defaultOptimizeInterval,
		ReadOnlyUser:     defaultReadOnlyUser,
	}
}

// withDefaults returns a copy of c with zero-valued fields replaced by
// their defaults.
func (c Config) withDefaults() Config {
	if c.Backends <= 0 {
		c.Backends = 1
	}

	if c.BusyTimeout <= 0 {
		c.BusyTimeout = defaultBusyTimeout
	}

	if c.OptimizeInterval <= 0 {
		c.OptimizeInterval = defaultOptimizeInterval
	}

	if c.ReadOnlyUser == "" {
		c.ReadOnlyUser = defaultReadOnlyUser
	}

	return c
}
