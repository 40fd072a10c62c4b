package sq3

import (
	"fmt"

	"github.com/ha1tch/sq3/engine"
	"github.com/ha1tch/sq3/pkg/log"
)

// Config holds options applied when a database is opened. The zero value
// applies nothing beyond opening the path.
type Config struct {
	// Path to the database file. ":memory:" opens a private in-memory
	// database.
	Path string

	// BusyTimeout in milliseconds. Zero leaves the engine default.
	BusyTimeout int

	// Engine options applied as PRAGMAs after open.
	JournalMode string // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
	Synchronous string // OFF, NORMAL, FULL, EXTRA
	CacheSize   int    // Number of pages (negative = KB)
	ForeignKeys bool

	// Logger for diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:        ":memory:",
		BusyTimeout: 5000, // 5 seconds
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		CacheSize:   -2000, // 2MB
		ForeignKeys: true,
	}
}

// OpenConfig opens cfg.Path through the engine registered under
// engineName and applies the configuration.
func OpenConfig(engineName string, cfg Config) (*Database, error) {
	db, err := Open(engineName, cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Logger != nil {
		db.logger = cfg.Logger
	}

	if cfg.BusyTimeout > 0 {
		if rc := db.SetBusyTimeout(cfg.BusyTimeout); rc != engine.OK {
			err := db.errStatus(rc)
			db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	var pragmas []string
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA journal_mode=%s", cfg.JournalMode))
	}
	if cfg.Synchronous != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA synchronous=%s", cfg.Synchronous))
	}
	if cfg.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size=%d", cfg.CacheSize))
	}
	if cfg.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys=ON")
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db.logger.System().Debug("database opened",
		"engine", engineName,
		"path", cfg.Path,
	)

	return db, nil
}
