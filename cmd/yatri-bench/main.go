// README: Benchmark runner; executes HTTP/DB/Redis checks against a running API and prints results.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

func main() {
	var cfg Config
	cmd := &cobra.Command{
		Use:          "yatri-bench",
		Short:        "Smoke, concurrency and throughput checks for yatri-api",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "base-url", envOrDefault("YATRI_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	f.StringVar(&cfg.DSN, "dsn", envOrDefault("YATRI_DB__DSN", ""), "Postgres DSN")
	f.StringVar(&cfg.RedisAddr, "redis", envOrDefault("YATRI_REDIS__ADDR", ""), "Redis address")
	f.StringVar(&cfg.MigrationPath, "migration", "migrations/0001_init.sql", "Migration SQL path")
	f.BoolVar(&cfg.ApplyMigration, "apply-migration", false, "Apply migration SQL before tests")
	f.BoolVar(&cfg.Strict, "strict", false, "Fail on skipped tests")
	f.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "Total timeout")
	f.IntVar(&cfg.Concurrency, "concurrency", envOrDefaultInt("YATRI_BENCH_CONCURRENCY", 20), "Concurrency for race and perf tests")
	f.DurationVar(&cfg.Duration, "duration", 10*time.Second, "Duration for perf tests")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(parent context.Context, cfg Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case "PASS":
			pass++
		case "FAIL":
			fail++
		case "SKIP":
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		return fmt.Errorf("%d failed, %d skipped", fail, skipped)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}
