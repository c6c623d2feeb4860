package route

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"fieldops/internal/distance"
	"fieldops/internal/types"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func stopAt(id string, hour int, lat, lng float64) Stop {
	return Stop{
		ID:              types.ID(id),
		JobID:           types.ID(id),
		Location:        types.Point{Lat: lat, Lng: lng},
		ScheduledAt:     day.Add(time.Duration(hour) * time.Hour),
		DurationMinutes: 60,
	}
}

type failingProvider struct{}

func (failingProvider) Matrix(context.Context, []types.Point) (distance.Matrix, error) {
	return nil, types.ErrDegraded
}

type fixedProvider struct{ m distance.Matrix }

func (f fixedProvider) Matrix(context.Context, []types.Point) (distance.Matrix, error) {
	return f.m, nil
}

func ids(stops []Stop) []string {
	out := make([]string, len(stops))
	for i, s := range stops {
		out[i] = string(s.ID)
	}
	return out
}

// scenarioStops are listed 9:00, 11:00, 10:00; the 10:00 stop lies between the other two.
func scenarioStops() []Stop {
	return []Stop{
		stopAt("nine", 9, 25.0000, 121.5000),
		stopAt("eleven", 11, 25.0000, 121.5200),
		stopAt("ten", 10, 25.0020, 121.5100),
	}
}

func TestOptimizeReordersByProximity(t *testing.T) {
	plan, err := NewOptimizer(nil, time.Second).Optimize(context.Background(), scenarioStops())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	got := ids(plan.Stops)
	want := []string{"nine", "ten", "eleven"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
		if plan.Stops[i].SequenceOrder != i {
			t.Fatalf("stop %s has sequence %d, want %d", got[i], plan.Stops[i].SequenceOrder, i)
		}
	}
	if plan.Savings.Percentage <= 0 || plan.Savings.DistanceKm <= 0 {
		t.Fatalf("expected positive savings, got %+v", plan.Savings)
	}
	if plan.Source != distance.SourceLocal {
		t.Fatalf("expected local source, got %s", plan.Source)
	}
	if want := int(math.Round(plan.TotalDistanceKm / 30 * 60)); plan.TotalDurationMin != want {
		t.Fatalf("duration = %d, want %d", plan.TotalDurationMin, want)
	}
}

func TestOptimizeDegenerate(t *testing.T) {
	opt := NewOptimizer(failingProvider{}, time.Second)
	for _, stops := range [][]Stop{nil, {stopAt("only", 9, 25, 121.5)}} {
		plan, err := opt.Optimize(context.Background(), stops)
		if err != nil {
			t.Fatalf("optimize: %v", err)
		}
		if len(plan.Stops) != len(stops) {
			t.Fatalf("expected %d stops, got %d", len(stops), len(plan.Stops))
		}
		if plan.TotalDistanceKm != 0 || plan.TotalDurationMin != 0 || plan.Savings != (Savings{}) {
			t.Fatalf("expected zero plan, got %+v", plan)
		}
	}
}

func TestOptimizeIsPermutation(t *testing.T) {
	stops := []Stop{
		stopAt("a", 8, 25.041, 121.543),
		stopAt("b", 9, 25.013, 121.465),
		stopAt("c", 9, 25.060, 121.520),
		stopAt("d", 13, 24.998, 121.580),
		stopAt("e", 10, 25.033, 121.565),
		stopAt("f", 15, 25.080, 121.500),
		stopAt("g", 11, 25.020, 121.530),
	}
	for name, provider := range map[string]distance.Provider{
		"local":  nil,
		"failed": failingProvider{},
	} {
		plan, err := NewOptimizer(provider, time.Second).Optimize(context.Background(), stops)
		if err != nil {
			t.Fatalf("%s: optimize: %v", name, err)
		}
		got, want := ids(plan.Stops), ids(stops)
		sort.Strings(got)
		sort.Strings(want)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: stops %v are not a permutation of %v", name, got, want)
			}
		}
		if plan.Stops[0].ID != "a" {
			t.Fatalf("%s: expected to start at earliest stop, got %s", name, plan.Stops[0].ID)
		}
	}
}

func TestOptimizeFallbackMatchesLocal(t *testing.T) {
	stops := scenarioStops()
	local, err := NewOptimizer(nil, time.Second).Optimize(context.Background(), stops)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	fallback, err := NewOptimizer(failingProvider{}, time.Second).Optimize(context.Background(), stops)
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	a, b := ids(local.Stops), ids(fallback.Stops)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fallback order %v differs from local %v", b, a)
		}
	}
	if local.TotalDistanceKm != fallback.TotalDistanceKm {
		t.Fatalf("fallback distance %v differs from local %v", fallback.TotalDistanceKm, local.TotalDistanceKm)
	}
}

func TestOptimizeUsesRemoteMatrix(t *testing.T) {
	// Road distances make "eleven" closer to "nine" than "ten" is.
	m := distance.Matrix{
		{0, 1, 5},
		{1, 0, 2},
		{5, 2, 0},
	}
	plan, err := NewOptimizer(fixedProvider{m: m}, time.Second).Optimize(context.Background(), scenarioStops())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if got := ids(plan.Stops); got[1] != "eleven" || got[2] != "ten" {
		t.Fatalf("expected remote matrix order, got %v", got)
	}
	if plan.Source != distance.SourceRemote {
		t.Fatalf("expected remote source, got %s", plan.Source)
	}
	if plan.TotalDistanceKm != 3 {
		t.Fatalf("expected 3 km from matrix, got %v", plan.TotalDistanceKm)
	}
	if plan.Savings.DistanceKm != 0 || plan.Savings.Percentage != 0 {
		t.Fatalf("input order already optimal, got %+v", plan.Savings)
	}
}

func TestOptimizeProbesUnknownCells(t *testing.T) {
	inf := math.Inf(1)
	m := distance.Matrix{
		{0, inf, inf},
		{inf, 0, inf},
		{inf, inf, 0},
	}
	remote, err := NewOptimizer(fixedProvider{m: m}, time.Second).Optimize(context.Background(), scenarioStops())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	local, _ := NewOptimizer(nil, time.Second).Optimize(context.Background(), scenarioStops())
	if math.IsInf(remote.TotalDistanceKm, 0) {
		t.Fatalf("unknown cells leaked into totals")
	}
	a, b := ids(remote.Stops), ids(local.Stops)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("probed order %v differs from haversine %v", a, b)
		}
	}
}

func TestOptimizeNeverNegativePercentage(t *testing.T) {
	// Greedy takes "near" first and is left with the long mid->far leg.
	m := distance.Matrix{
		{0, 1, 2, 10},
		{1, 0, 2, 2},
		{2, 2, 0, 20},
		{10, 2, 20, 0},
	}
	stops := []Stop{
		stopAt("start", 8, 25.00, 121.50),
		stopAt("near", 9, 25.01, 121.50),
		stopAt("mid", 10, 25.02, 121.50),
		stopAt("far", 11, 25.03, 121.50),
	}
	input := []Stop{stops[0], stops[2], stops[1], stops[3]}
	reordered := distance.Matrix{
		{m[0][0], m[0][2], m[0][1], m[0][3]},
		{m[2][0], m[2][2], m[2][1], m[2][3]},
		{m[1][0], m[1][2], m[1][1], m[1][3]},
		{m[3][0], m[3][2], m[3][1], m[3][3]},
	}
	plan, err := NewOptimizer(fixedProvider{m: reordered}, time.Second).Optimize(context.Background(), input)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	// input: start->mid->near->far = 2+2+2 = 6; greedy: start->near->mid->far = 1+2+20 = 23.
	if plan.TotalDistanceKm != 23 {
		t.Fatalf("expected greedy total 23, got %v", plan.TotalDistanceKm)
	}
	if plan.Savings.DistanceKm != -17 || plan.Savings.Percentage != 0 {
		t.Fatalf("expected negative delta with zero percentage, got %+v", plan.Savings)
	}
}

func TestOptimizeRejectsInvalidStops(t *testing.T) {
	opt := NewOptimizer(nil, time.Second)
	bad := stopAt("bad", 9, 95, 121.5)
	zero := stopAt("zero", 9, 25, 121.5)
	zero.DurationMinutes = 0

	for _, stops := range [][]Stop{{bad}, {stopAt("ok", 8, 25, 121.5), zero}} {
		if _, err := opt.Optimize(context.Background(), stops); !errors.Is(err, types.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	}
}
