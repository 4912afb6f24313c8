// README: Benchmark cases; environment, API flow, confirm races and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	run   string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		run:   uuid.NewString()[:8],
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

// id scopes bench entities to this run so repeated runs do not collide.
func (r *Runner) id(name string) string {
	return "bench-" + r.run + "-" + name
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	pickup := map[string]float64{"lat": 12.935, "lng": 77.624}
	dest := map[string]float64{"lat": 12.9784, "lng": 77.6408}

	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration || r.db == nil {
					return Result{Status: "SKIP", Note: "apply-migration=false or no db"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		httpCaseMethod("API: health", http.MethodGet, base+"/health", nil, []int{200}),

		httpCase("Drivers: register d1", base+"/api/drivers", r.driver("d1"), []int{201}),
		httpCase("Drivers: register d2", base+"/api/drivers", r.driver("d2"), []int{201}),
		httpCase("Drivers: invalid profile -> 400", base+"/api/drivers", map[string]any{"id": r.id("bad"), "base_acceptance_rate": 2}, []int{400}),

		httpCase("Rides: request (valid)", base+"/api/rides/request", map[string]any{
			"rider_id": r.id("rider"), "pickup": pickup, "destination": dest,
		}, []int{201, 503}),
		httpCase("Rides: request missing destination -> 400", base+"/api/rides/request", map[string]any{
			"rider_id": r.id("rider"), "pickup": pickup,
		}, []int{400}),
		httpCaseMethod("Rides: unknown ride -> 404", http.MethodGet, base+"/api/rides/"+r.id("missing"), nil, []int{404}),

		httpCase("Pricing: invalid vote -> 400", base+"/api/pricing/vote", map[string]any{
			"driver_id": r.id("d1"), "direction": 0,
		}, []int{400}),
		httpCaseMethod("Pricing: adjustment", http.MethodGet, base+"/api/pricing/adjustment", nil, []int{200}),

		httpCase("Prebooking: past pickup -> 422", base+"/api/prebooking/create", map[string]any{
			"rider_id": r.id("rider"), "ward": "KOR", "pickup_time": time.Now().Add(-time.Hour),
		}, []int{422}),

		httpCaseMethod("Demand: optimal routes", http.MethodGet, base+"/api/demand/optimal-routes", nil, []int{200}),

		{
			Name: "Concurrency: confirm same ride with many drivers",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.concurrentConfirm(ctx, base, pickup, dest)
			},
		},
		{
			Name: "Perf: location update throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.perfLoad(ctx, http.MethodPut, base+"/api/drivers/"+r.id("d1")+"/location", pickup)
			},
		},
		{
			Name: "Perf: request ride throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.perfLoad(ctx, http.MethodPost, base+"/api/rides/request", map[string]any{
					"rider_id": r.id("perf"), "pickup": pickup, "destination": dest,
				})
			},
		},
	}
}

func (r *Runner) driver(name string) map[string]any {
	return map[string]any{
		"id":                   r.id(name),
		"location":             map[string]float64{"lat": 12.9352, "lng": 77.6245},
		"available":            true,
		"experience_months":    12,
		"base_acceptance_rate": 0.8,
		"peak_acceptance_rate": 0.7,
	}
}

func httpCase(name, url string, body any, okStatuses []int) TestCase {
	return httpCaseMethod(name, http.MethodPost, url, body, okStatuses)
}

func httpCaseMethod(name, method, url string, body any, okStatuses []int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			status, _, err := r.do(ctx, method, url, body)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			latency := time.Since(start)
			if contains(okStatuses, status) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
		},
	}
}

func (r *Runner) do(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

// concurrentConfirm requests one ride and fires confirms for every offered
// driver at once. Exactly one must win.
func (r *Runner) concurrentConfirm(ctx context.Context, base string, pickup, dest map[string]float64) Result {
	status, body, err := r.do(ctx, http.MethodPost, base+"/api/rides/request", map[string]any{
		"rider_id": r.id("race"), "pickup": pickup, "destination": dest,
	})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusCreated {
		return Result{Status: "SKIP", Note: fmt.Sprintf("request status=%d", status)}
	}
	var created struct {
		ID     string `json:"id"`
		Offers []struct {
			DriverID string `json:"driver_id"`
		} `json:"offers"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		succ int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		driverID := created.Offers[i%len(created.Offers)].DriverID
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, err := r.do(ctx, http.MethodPost, base+"/api/rides/"+created.ID+"/confirm", map[string]string{"driver_id": driverID})
			if err != nil {
				return
			}
			if status == http.StatusOK {
				mu.Lock()
				succ++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succ == 1 {
		return Result{Status: "PASS", Note: fmt.Sprintf("success=%d offers=%d", succ, len(created.Offers))}
	}
	return Result{Status: "FAIL", Note: fmt.Sprintf("success=%d", succ)}
}

func (r *Runner) perfLoad(ctx context.Context, method, url string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		count    int64
		errCount int64
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				_, _, err := r.do(ctx, method, url, payload)
				mu.Lock()
				if err != nil {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
