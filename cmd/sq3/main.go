package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ha1tch/sq3"
	"github.com/ha1tch/sq3/engine"
	"github.com/ha1tch/sq3/pkg/log"
	"github.com/ha1tch/sq3/pkg/version"
	"github.com/ha1tch/sq3/script"

	// Engine implementation (registers via init())
	_ "github.com/ha1tch/sq3/engine/sqlite"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sq3", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		// Database
		dbPath  = fs.String("db", ":memory:", "Database path (file path or :memory:)")
		engName = fs.String("engine", "sqlite3", "Engine name")

		// Execution
		execSQL = fs.String("e", "", "Execute SQL and print result rows")

		// Scripts
		scriptDir  = fs.String("scripts", "", "Directory of .sql scripts to apply")
		watchFiles = fs.Bool("w", false, "Watch the script directory and reapply on change")
		watchL     = fs.Bool("watch", false, "Watch the script directory and reapply on change")

		// Engine options
		busyTimeout = fs.Int("busy-timeout", 5000, "Busy timeout in milliseconds")
		journalMode = fs.String("journal", "WAL", "Journal mode (WAL, DELETE, TRUNCATE, MEMORY, OFF)")
		foreignKeys = fs.Bool("fk", true, "Enforce foreign keys")

		// Logging
		logLevel  = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFormat = fs.String("log-format", "text", "Log format (text, json)")

		// Help and version
		showHelp     = fs.Bool("h", false, "Show help")
		showHelpL    = fs.Bool("help", false, "Show help")
		showVersion  = fs.Bool("v", false, "Show version")
		showVersionL = fs.Bool("version", false, "Show version")
	)

	fs.Usage = func() {
		printUsage(stderr)
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Coalesce short and long flags
	if *watchL {
		*watchFiles = true
	}
	if *showHelpL {
		*showHelp = true
	}
	if *showVersionL {
		*showVersion = true
	}

	if *showHelp {
		printUsage(stdout)
		return 0
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.Full())
		return 0
	}

	logger, err := buildLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	log.SetDefault(logger)

	cfg := sq3.DefaultConfig()
	cfg.Path = *dbPath
	cfg.BusyTimeout = *busyTimeout
	cfg.JournalMode = *journalMode
	cfg.ForeignKeys = *foreignKeys
	cfg.Logger = logger

	db, err := sq3.OpenConfig(*engName, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error opening database: %v\n", err)
		return 1
	}
	defer db.Close()

	// Apply scripts first so -e can query their results.
	var applied []*script.Script
	if *scriptDir != "" {
		result, err := script.NewLoader(logger).LoadDirectory(*scriptDir)
		if err != nil {
			fmt.Fprintf(stderr, "error loading scripts: %v\n", err)
			return 1
		}
		for _, e := range result.Errors {
			fmt.Fprintf(stderr, "warning: %s: %v\n", e.Path, e.Err)
		}
		if err := script.ApplyAll(db, result.Scripts); err != nil {
			fmt.Fprintf(stderr, "error applying scripts: %v\n", err)
			return 1
		}
		applied = result.Scripts
		fmt.Fprintf(stdout, "applied %d script(s)\n", len(result.Scripts))
	}

	if *execSQL != "" {
		if err := execute(db, *execSQL, stdout); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	}

	if *watchFiles {
		if *scriptDir == "" {
			fmt.Fprintln(stderr, "error: -watch requires -scripts")
			return 2
		}
		w, err := script.NewWatcher(*scriptDir, db, logger,
			script.WithOnApply(func(s *script.Script, event string) {
				fmt.Fprintf(stdout, "%s: %s\n", event, s.Name)
			}),
			script.WithOnError(func(err error) {
				fmt.Fprintf(stderr, "watch error: %v\n", err)
			}),
		)
		if err != nil {
			fmt.Fprintf(stderr, "error creating watcher: %v\n", err)
			return 1
		}
		for _, s := range applied {
			w.MarkApplied(s)
		}
		if err := w.Start(); err != nil {
			fmt.Fprintf(stderr, "error starting watcher: %v\n", err)
			return 1
		}
		defer w.Stop()

		fmt.Fprintf(stdout, "watching %s (version %s)\n", *scriptDir, version.Version)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.System().Info("shutdown signal received", "signal", sig.String())
		fmt.Fprintln(stdout, "stopped")
		return 0
	}

	// Without -e or -watch, read statements from stdin.
	if *execSQL == "" {
		if err := executeStream(db, stdin, stdout); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	}

	return 0
}

// execute runs sql, printing result rows as tab-separated values with a
// header line. Non-query statements print the change count.
func execute(db *sq3.Database, sql string, stdout io.Writer) error {
	q, err := sq3.NewQuery(db, sql)
	if err != nil {
		return err
	}
	defer q.Close()

	n := q.ColumnCount()
	if n == 0 {
		// No result columns: run the whole text as commands.
		q.Close()
		cmd, err := sq3.NewCommand(db, sql)
		if err != nil {
			return err
		}
		defer cmd.Close()
		if err := cmd.ExecuteAll(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d row(s) changed\n", db.Changes())
		return nil
	}

	names := make([]string, n)
	for i := range names {
		names[i] = q.ColumnName(i)
	}
	fmt.Fprintln(stdout, strings.Join(names, "\t"))

	it, err := q.Iter()
	if err != nil {
		return err
	}
	for !it.Done() {
		row := it.Row()
		cells := make([]string, n)
		for i := range cells {
			if row.IsNull(i) {
				cells[i] = "NULL"
			} else {
				cells[i] = row.Text(i)
			}
		}
		fmt.Fprintln(stdout, strings.Join(cells, "\t"))
		if err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}

// executeStream reads semicolon-terminated statements from r and
// executes each one.
func executeStream(db *sq3.Database, r io.Reader, stdout io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var buf strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteString("\n")
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			if err := execute(db, buf.String(), stdout); err != nil {
				return err
			}
			buf.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(buf.String()) != "" {
		return execute(db, buf.String(), stdout)
	}
	return nil
}

func buildLogger(level, format string) (*log.Logger, error) {
	lv, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	f, err := log.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	cfg := log.DefaultConfig()
	cfg.DefaultLevel = lv
	cfg.Format = f
	return log.New(cfg), nil
}

// engineNames lists the registered engines for the usage text.
func engineNames() string {
	names := engine.Engines()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `sq3 - SQL scratchpad and script runner

Usage:
  sq3 [options]
  sq3 -e "SELECT ..." [options]
  echo "SELECT 1;" | sq3 [options]

Database:
  -db <path>               Database path (default: :memory:)
  -engine <name>           Engine name (default: sqlite3, available: %s)

Execution:
  -e <sql>                 Execute SQL and print result rows (TSV)

Scripts:
  -scripts <dir>           Directory of .sql scripts to apply in order
  -w, -watch               Watch the script directory and reapply on change

Engine Options:
  -busy-timeout <ms>       Busy timeout in milliseconds (default: 5000)
  -journal <mode>          Journal mode (default: WAL)
  -fk                      Enforce foreign keys (default: true)

Logging:
  -log-level <level>       Log level: debug, info, warn, error (default: info)
  -log-format <format>     Log format: text, json (default: text)

General:
  -h, -help                Show help
  -v, -version             Show version
`, engineNames())
}
