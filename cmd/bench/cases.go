// README: Benchmark smoke cases; includes HTTP, DB, Redis, and performance checks.
package main

import (
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
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
		fmt.Printf("%-7s %s", res.Status, tc.Name)
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

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "DB connectivity",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
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
			Name:  "Env: Redis connect",
			Focus: "Redis connectivity",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
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
			Name:  "Migration: apply (optional)",
			Focus: "Optionally apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				stmts := splitSQL(string(sql))
				for _, s := range stmts {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "Check tables against migrations/0001_init.sql",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
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
		{
			Name:  "API: server reachable",
			Focus: "API responds",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				resp, err := r.httpc.Get(base + "/health")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				_ = resp.Body.Close()
				return Result{Status: "PASS", Latency: time.Since(start), Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			},
		},

		// Registry
		httpCase("Fleet: register driver", base+"/api/drivers", map[string]any{
			"name":       "bench driver",
			"phone":      "0900000000",
			"license_no": "BENCH-001",
		}, []int{200, 201}, []int{401, 404}),

		httpCase("Fleet: register vehicle", base+"/api/vehicles", map[string]any{
			"plate":       "BENCH-0001",
			"model":       "box truck",
			"capacity_kg": 1500,
		}, []int{200, 201}, []int{401, 404}),

		httpCase("Fleet: register driver (missing fields -> 400)", base+"/api/drivers", map[string]any{}, []int{400}, []int{401, 404}),

		// Parcels
		httpCase("Parcel: book (valid)", base+"/api/parcels", map[string]any{
			"reference": "BENCH-P1",
			"weight_kg": 12.5,
			"dest_name": "Neihu depot",
			"dest_lat":  25.0695,
			"dest_lng":  121.5770,
			"seq":       1,
		}, []int{200, 201}, []int{401, 404}),

		httpCase("Parcel: book (missing weight -> 400)", base+"/api/parcels", map[string]any{
			"reference": "BENCH-P2",
		}, []int{400}, []int{401, 404}),

		httpCaseMethod("Parcel: booked pool", http.MethodGet, base+"/api/parcels/pools/booked", nil, []int{200}, []int{401, 404}),
		httpCaseMethod("Parcel: declined pool", http.MethodGet, base+"/api/parcels/pools/declined", nil, []int{200}, []int{401, 404}),

		// Trip lifecycle
		httpCase("Trip: create (unknown resources -> 404/409)", base+"/api/trips", map[string]any{
			"parcel_ids": []string{"nonexistent"},
			"driver_id":  "nonexistent",
			"vehicle_id": "nonexistent",
			"start_lat":  25.0330,
			"start_lng":  121.5654,
		}, []int{404, 409}, []int{401}),

		httpCase("Trip: create (missing fields -> 400)", base+"/api/trips", map[string]any{}, []int{400}, []int{401, 404}),

		httpCase("Trip: accept unknown -> 404", base+"/api/trips/nonexistent/accept", map[string]any{
			"driver_id": "d1",
		}, []int{404}, []int{401}),

		httpCase("Trip: complete unknown -> 404", base+"/api/trips/nonexistent/complete", nil, []int{404}, []int{401}),

		manualCase("Trip: decline releases parcels to declined pool", "create a real offer, decline it, then inspect /api/parcels/pools/declined"),
		manualCase("Trip: complete blocked while undelivered", "needs a live trip with pending destinations"),

		// Tracking
		httpCase("Tracking: invalid coords -> 400", base+"/api/trips/nonexistent/location", map[string]any{
			"lat": 123.0,
			"lng": 456.0,
		}, []int{400}, []int{401, 404}),

		httpCase("Tracking: report for unknown trip ignored", base+"/api/trips/nonexistent/location", map[string]any{
			"lat": 25.0330,
			"lng": 121.5654,
		}, []int{200}, []int{401, 404}),

		httpCaseMethod("Tracking: ongoing unknown -> 404", http.MethodGet, base+"/api/trips/nonexistent/ongoing", nil, []int{404}, []int{401}),

		// Notifications
		httpCaseMethod("Notify: manager feed", http.MethodGet, base+"/api/notifications", nil, []int{200}, []int{401, 404}),
		httpCaseMethod("Notify: eligible drivers", http.MethodGet, base+"/api/notifications/eligible-drivers", nil, []int{200}, []int{401, 404}),

		manualCase("Notify: decline escalation ordering", "decline an offer, then check the escalation sorts first in the manager feed"),
		manualCase("Reassign: declined driver excluded", "reassign to the driver who declined and expect 409"),

		// Concurrency
		{
			Name:  "Concurrency: multi accept same trip",
			Focus: "only the first accept wins",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentAccept(ctx, r, base+"/api/trips/nonexistent/accept")
			},
		},
		manualCase("Concurrency: same driver on two offers", "create two trips with the same driver concurrently; exactly one succeeds"),

		// Performance
		{
			Name:  "Perf: location report throughput",
			Focus: "sustained location updates",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/api/trips/nonexistent/location", map[string]any{
					"lat": 25.0330,
					"lng": 121.5654,
				})
			},
		},
		{
			Name:  "Perf: parcel booking throughput",
			Focus: "sustained bookings",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/api/parcels", map[string]any{
					"reference": "BENCH-PERF",
					"weight_kg": 1.0,
				})
			},
		},
	}
}

func httpCase(name, url string, body any, okStatuses, pendingStatuses []int) TestCase {
	return httpCaseMethod(name, http.MethodPost, url, body, okStatuses, pendingStatuses)
}

func httpCaseMethod(name, method, url string, body any, okStatuses, pendingStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			var reader io.Reader
			if body != nil {
				b, _ := json.Marshal(body)
				reader = strings.NewReader(string(b))
			}
			req, _ := http.NewRequestWithContext(ctx, method, url, reader)
			req.Header.Set("Content-Type", "application/json")
			start := time.Now()
			resp, err := r.httpc.Do(req)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			latency := time.Since(start)

			if contains(okStatuses, resp.StatusCode) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			if contains(pendingStatuses, resp.StatusCode) {
				return Result{Status: "PENDING", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: "SKIP", Note: note}
		},
	}
}

func concurrentAccept(ctx context.Context, r *Runner, url string) Result {
	payload := map[string]any{
		"driver_id": "d1",
	}
	b, _ := json.Marshal(payload)
	wg := sync.WaitGroup{}
	succ := 0
	pend := 0
	mu := sync.Mutex{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(b)))
			req.Header.Set("Content-Type", "application/json")
			resp, err := r.httpc.Do(req)
			if err != nil {
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			mu.Lock()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				succ++
			} else if resp.StatusCode == 401 {
				pend++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if pend == r.cfg.Concurrency {
		return Result{Status: "PENDING", Note: "auth required"}
	}
	if succ <= 1 {
		return Result{Status: "PASS", Note: fmt.Sprintf("success=%d", succ)}
	}
	return Result{Status: "FAIL", Note: fmt.Sprintf("success=%d", succ)}
}

func perfLoad(ctx context.Context, r *Runner, url string, payload any) Result {
	b, _ := json.Marshal(payload)
	end := time.Now().Add(r.cfg.Duration)
	var count int64
	var errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) {
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(b)))
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					mu.Lock()
					errCount++
					mu.Unlock()
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				mu.Lock()
				count++
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
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
