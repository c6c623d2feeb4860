// README: Bench cases: service health, optimizer and hub throughput, route apply race, location GEO cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"fieldops/internal/distance"
	"fieldops/internal/events"
	"fieldops/internal/modules/dispatch"
	"fieldops/internal/modules/location"
	"fieldops/internal/modules/route"
	"fieldops/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
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
	Name string
	Run  func(ctx context.Context, r *Runner) Result
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
		res.Name = tc.Name
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

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: caseDBPing},
		{Name: "Env: Redis connect", Run: caseRedisPing},
		{Name: "API: health", Run: caseHealth},
		{Name: "Optimizer: synthetic day", Run: caseOptimizer},
		{Name: "Hub: job fan-out", Run: caseHubFanOut},
		{Name: "Route: concurrent apply", Run: caseApplyRace},
		{Name: "Location: GEO nearby", Run: caseNearby},
		{Name: "Perf: health under load", Run: casePerfHealth},
	}
}

func skip(note string) Result { return Result{Status: statusSkip, Note: note} }

func fail(err error) Result { return Result{Status: statusFail, Note: err.Error()} }

func caseDBPing(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return skip("no DSN")
	}
	start := time.Now()
	if err := r.db.Ping(ctx); err != nil {
		return fail(err)
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func caseRedisPing(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return skip("no redis address")
	}
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fail(err)
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func caseHealth(ctx context.Context, r *Runner) Result {
	start := time.Now()
	if err := r.getHealth(ctx); err != nil {
		return fail(err)
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func (r *Runner) getHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// syntheticDay scatters n stops around Taipei in shuffled scheduled order.
func syntheticDay(n int, rng *rand.Rand) []route.Stop {
	day := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	stops := make([]route.Stop, n)
	for i := range stops {
		stops[i] = route.Stop{
			JobID:           types.ID(fmt.Sprintf("job-%03d", i)),
			Location:        types.Point{Lat: 25.0 + rng.Float64()*0.2, Lng: 121.45 + rng.Float64()*0.2},
			ScheduledAt:     day.Add(time.Duration(i*15) * time.Minute),
			DurationMinutes: 30,
		}
	}
	rng.Shuffle(n, func(i, j int) { stops[i], stops[j] = stops[j], stops[i] })
	return stops
}

func caseOptimizer(ctx context.Context, r *Runner) Result {
	stops := syntheticDay(r.cfg.Stops, rand.New(rand.NewSource(1)))
	opt := route.NewOptimizer(nil, 0)

	start := time.Now()
	plan, err := opt.Optimize(ctx, stops)
	if err != nil {
		return fail(err)
	}
	lat := time.Since(start)

	seen := map[types.ID]bool{}
	for i, s := range plan.Stops {
		if s.SequenceOrder != i || seen[s.JobID] {
			return fail(fmt.Errorf("stop %d out of sequence or duplicated", i))
		}
		seen[s.JobID] = true
	}
	if len(seen) != len(stops) {
		return fail(fmt.Errorf("plan has %d stops, want %d", len(seen), len(stops)))
	}
	if plan.Source != distance.SourceLocal {
		return fail(fmt.Errorf("unexpected source %s", plan.Source))
	}
	return Result{Status: statusPass, Latency: lat, Note: fmt.Sprintf("%.1f km, saved %d%%", plan.TotalDistanceKm, plan.Savings.Percentage)}
}

func caseHubFanOut(_ context.Context, r *Runner) Result {
	hub := dispatch.NewHub(4)
	for i := 0; i < r.cfg.Watchers; i++ {
		conn := fmt.Sprintf("conn-%d", i)
		hub.Connect(conn)
		if err := hub.TrackJob(conn, "job-hot"); err != nil {
			return fail(err)
		}
	}
	start := time.Now()
	n := hub.ToJob("job-hot", dispatch.Message{Event: dispatch.EventJobStatus})
	lat := time.Since(start)
	if n != r.cfg.Watchers {
		return fail(fmt.Errorf("delivered %d of %d", n, r.cfg.Watchers))
	}
	return Result{Status: statusPass, Latency: lat, Note: fmt.Sprintf("%d watchers", n)}
}

func caseApplyRace(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return skip("no DSN")
	}
	store := route.NewStore(r.db)
	svc := route.NewService(store, nil, nil, events.Nop{})

	tenant, tech := types.NewID(), types.NewID()
	rt := &route.OptimizedRoute{
		ID:           types.NewID(),
		TenantID:     tenant,
		TechnicianID: tech,
		Date:         time.Now().UTC().Truncate(24 * time.Hour),
		Stops:        []route.Stop{},
		Source:       distance.SourceLocal,
		OptimizedAt:  time.Now().UTC(),
	}
	if err := store.Upsert(ctx, rt); err != nil {
		return fail(fmt.Errorf("seeding route (is the schema applied?): %w", err))
	}

	var wins, conflicts atomic.Int32
	errc := make(chan error, r.cfg.Concurrency)
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, route.ApplyCommand{TenantID: tenant, RouteID: rt.ID})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, types.ErrConflict):
				conflicts.Add(1)
			default:
				errc <- err
			}
		}()
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		return fail(err)
	}
	if wins.Load() != 1 {
		return fail(fmt.Errorf("%d applies succeeded, want 1", wins.Load()))
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("%d conflicts", conflicts.Load())}
}

func caseNearby(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return skip("no redis address")
	}
	cache := location.NewCache(r.redis)
	tenant := types.NewID()
	near := &location.TechnicianLocation{UserID: types.NewID(), TenantID: tenant, Lat: 25.0340, Lng: 121.5645, Status: location.StatusIdle, RecordedAt: time.Now().UTC()}
	far := &location.TechnicianLocation{UserID: types.NewID(), TenantID: tenant, Lat: 24.1477, Lng: 120.6736, Status: location.StatusIdle, RecordedAt: time.Now().UTC()}
	for _, l := range []*location.TechnicianLocation{near, far} {
		if _, err := cache.SetLatest(ctx, l); err != nil {
			return fail(err)
		}
	}
	start := time.Now()
	found, err := cache.Nearby(ctx, tenant, types.Point{Lat: 25.04, Lng: 121.56}, 5)
	if err != nil {
		return fail(err)
	}
	lat := time.Since(start)
	if len(found) != 1 || found[0].UserID != near.UserID {
		return fail(fmt.Errorf("nearby returned %d technicians", len(found)))
	}
	return Result{Status: statusPass, Latency: lat}
}

func casePerfHealth(ctx context.Context, r *Runner) Result {
	if err := r.getHealth(ctx); err != nil {
		return skip("API unreachable: " + err.Error())
	}
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	var ok, failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for runCtx.Err() == nil {
				if err := r.getHealth(runCtx); err != nil {
					if runCtx.Err() == nil {
						failed.Add(1)
					}
					continue
				}
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	rps := float64(ok.Load()) / r.cfg.Duration.Seconds()
	note := fmt.Sprintf("%.0f req/s, %d errors", rps, failed.Load())
	if failed.Load() > 0 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}
