// Package doctor runs self-diagnostics over a Murmur home directory:
// config, file permissions, the database, and the retention schedule.
package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/murmurapp/murmur/internal/config"
	"github.com/murmurapp/murmur/internal/retention"
	"github.com/murmurapp/murmur/internal/storage"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkPermissions,
		checkDatabase,
		checkRetention,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	path := config.ConfigPath(cfg.HomeDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CheckResult{
			Name:    "Config",
			Status:  "WARN",
			Message: "No config file, running on defaults",
			Detail:  path,
		}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", path)}
}

func checkPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}
	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Cannot create home dir: %v", err)}
	}
	testFile := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Home dir unwritable: %v", err)}
	}
	os.Remove(testFile)

	return CheckResult{Name: "Permissions", Status: "PASS", Message: "Home directory writable"}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Database", Status: "SKIP", Message: "Config missing"}
	}

	store := storage.NewManager(cfg.DBPath())
	if err := store.Initialize(ctx); err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer store.Close()

	journalMode, _, err := storage.QueryOne(ctx, store, `PRAGMA journal_mode;`,
		func(row *sql.Row) (string, error) {
			var mode string
			return mode, row.Scan(&mode)
		})
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}
	if journalMode != "wal" {
		return CheckResult{
			Name:    "Database",
			Status:  "WARN",
			Message: fmt.Sprintf("journal_mode is %q, expected wal", journalMode),
		}
	}

	runner := storage.NewRunner(store)
	version, err := runner.CurrentVersion(ctx)
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("Ledger read failed: %v", err)}
	}
	latest := 0
	for _, m := range storage.Migrations {
		if m.Version > latest {
			latest = m.Version
		}
	}
	if version < latest {
		return CheckResult{
			Name:    "Database",
			Status:  "WARN",
			Message: fmt.Sprintf("Schema at version %d, %d available", version, latest),
			Detail:  "Migrations run on next startup",
		}
	}

	return CheckResult{
		Name:    "Database",
		Status:  "PASS",
		Message: fmt.Sprintf("Open, WAL enabled, schema at version %d", version),
		Detail:  cfg.DBPath(),
	}
}

func checkRetention(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Retention", Status: "SKIP", Message: "Config missing"}
	}
	if cfg.Retention.Schedule == "" {
		return CheckResult{Name: "Retention", Status: "WARN", Message: "Sweep schedule disabled"}
	}
	next, err := retention.NextRunTime(cfg.Retention.Schedule, time.Now())
	if err != nil {
		return CheckResult{
			Name:    "Retention",
			Status:  "FAIL",
			Message: fmt.Sprintf("Bad schedule %q: %v", cfg.Retention.Schedule, err),
		}
	}
	return CheckResult{
		Name:    "Retention",
		Status:  "PASS",
		Message: fmt.Sprintf("Next sweep at %s", next.Format(time.RFC3339)),
	}
}
