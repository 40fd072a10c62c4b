// Package script loads SQL script files from a directory tree and
// applies them to a database, each script inside its own transaction.
// A Watcher can reapply scripts as the files change on disk.
package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ha1tch/sq3"
	"github.com/ha1tch/sq3/pkg/log"
)

// Script is a single SQL file read from disk.
type Script struct {
	// Name is the path relative to the load root, slash-separated,
	// without the .sql extension.
	Name string

	// Path is the absolute source file path.
	Path string

	// SQL is the file's contents.
	SQL string

	// SourceHash identifies the contents, used to skip no-op reloads.
	SourceHash string

	LoadedAt   time.Time
	ModifiedAt time.Time
}

// LoadError records a loading failure with context.
type LoadError struct {
	Path    string
	Err     error
	Message string
}

// LoadResult holds the outcome of loading a directory.
type LoadResult struct {
	Scripts      []*Script
	Errors       []LoadError
	TotalFiles   int
	SuccessCount int
	FailCount    int
}

// Loader reads .sql files from a directory tree.
type Loader struct {
	logger *log.Logger
}

// NewLoader creates a script loader. A nil logger uses log.Default().
func NewLoader(logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{logger: logger}
}

// LoadDirectory loads every .sql file under root, sorted by name so
// scripts apply in a stable order. Files that fail to read are recorded
// in the result's Errors and do not abort the load.
func (l *Loader) LoadDirectory(root string) (*LoadResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("script directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	result := &LoadResult{}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(path), ".sql") {
			return nil
		}

		result.TotalFiles++
		s, err := l.loadFile(root, path)
		if err != nil {
			result.FailCount++
			result.Errors = append(result.Errors, LoadError{
				Path:    path,
				Err:     err,
				Message: "failed to load script",
			})
			l.logger.System().Warn("failed to load script",
				"path", path,
				"error", err.Error(),
			)
			return nil
		}
		result.SuccessCount++
		result.Scripts = append(result.Scripts, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Slice(result.Scripts, func(i, j int) bool {
		return result.Scripts[i].Name < result.Scripts[j].Name
	})

	l.logger.System().Info("script load complete",
		"root", root,
		"scripts", result.SuccessCount,
		"errors", result.FailCount,
	)

	return result, nil
}

// LoadFile loads a single .sql file. The script name is the base name
// without extension.
func (l *Loader) LoadFile(path string) (*Script, error) {
	return l.loadFile(filepath.Dir(path), path)
}

func (l *Loader) loadFile(root, path string) (*Script, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	name := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))

	sum := sha256.Sum256(source)

	s := &Script{
		Name:       name,
		Path:       path,
		SQL:        string(source),
		SourceHash: hex.EncodeToString(sum[:]),
		LoadedAt:   time.Now(),
	}
	if info, err := os.Stat(path); err == nil {
		s.ModifiedAt = info.ModTime()
	}

	l.logger.System().Debug("script file loaded",
		"path", path,
		"script", name,
	)

	return s, nil
}

// Apply runs the script against db inside a single transaction. Every
// statement in the file executes through the multi-statement path, with
// rollback on the first failure.
func Apply(db *sq3.Database, s *Script) error {
	tx, err := sq3.Begin(db)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", s.Name, err)
	}
	defer tx.Close()

	cmd, err := sq3.NewCommand(db, s.SQL)
	if err != nil {
		return fmt.Errorf("failed to prepare %s: %w", s.Name, err)
	}
	defer cmd.Close()

	if err := cmd.ExecuteAll(); err != nil {
		return fmt.Errorf("failed to execute %s: %w", s.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", s.Name, err)
	}
	return nil
}

// ApplyAll applies every script in order, stopping at the first
// failure.
func ApplyAll(db *sq3.Database, scripts []*Script) error {
	for _, s := range scripts {
		if err := Apply(db, s); err != nil {
			return err
		}
	}
	return nil
}
