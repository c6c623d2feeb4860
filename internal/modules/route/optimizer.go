// README: Nearest-neighbour stop sequencing over a remote or local distance matrix.
package route

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"fieldops/internal/distance"
	"fieldops/internal/geo"
	"fieldops/internal/types"
)

// Plan is the result of sequencing one technician's stops.
type Plan struct {
	Stops            []Stop
	TotalDistanceKm  float64
	TotalDurationMin int
	Savings          Savings
	Source           distance.Source
}

type Optimizer struct {
	remote  distance.Provider
	timeout time.Duration
}

// NewOptimizer returns an optimizer that tries remote first. remote may be nil.
func NewOptimizer(remote distance.Provider, timeout time.Duration) *Optimizer {
	return &Optimizer{remote: remote, timeout: timeout}
}

// Optimize orders stops by nearest neighbour starting from the earliest scheduled stop.
// Savings are measured against the order the stops were given in, which for a stored
// day is scheduled-time order. The input slice is not modified.
func (o *Optimizer) Optimize(ctx context.Context, stops []Stop) (Plan, error) {
	for _, s := range stops {
		if err := geo.Validate(s.Location); err != nil {
			return Plan{}, fmt.Errorf("stop %s: %w", s.ID, err)
		}
		if s.DurationMinutes <= 0 {
			return Plan{}, fmt.Errorf("stop %s: duration must be positive: %w", s.ID, types.ErrInvalidInput)
		}
	}

	if len(stops) < 2 {
		out := make([]Stop, len(stops))
		copy(out, stops)
		renumber(out)
		return Plan{Stops: out, Source: distance.SourceLocal}, nil
	}

	points := make([]types.Point, len(stops))
	for i, s := range stops {
		points[i] = s.Location
	}
	m, source := distance.Resolve(ctx, o.remote, points, o.timeout)
	dist := probed(m, points)

	visit := nearestNeighbour(byScheduledTime(stops), dist)
	originalKm := pathKm(identity(len(stops)), dist)
	optimizedKm := pathKm(visit, dist)

	out := make([]Stop, len(visit))
	for i, idx := range visit {
		out[i] = stops[idx]
	}
	renumber(out)

	return Plan{
		Stops:            out,
		TotalDistanceKm:  optimizedKm,
		TotalDurationMin: geo.TravelMinutes(optimizedKm),
		Savings:          savings(originalKm, optimizedKm),
		Source:           source,
	}, nil
}

// probed reads cells from m and substitutes a haversine estimate for unknown ones.
func probed(m distance.Matrix, points []types.Point) func(i, j int) float64 {
	return func(i, j int) float64 {
		if v := m[i][j]; v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return v
		}
		return geo.DistanceKm(points[i], points[j])
	}
}

// nearestNeighbour starts at candidates[0] and repeatedly moves to the closest unvisited
// index. Ties go to whichever comes first in candidates.
func nearestNeighbour(candidates []int, dist func(i, j int) float64) []int {
	visited := make(map[int]bool, len(candidates))
	order := make([]int, 0, len(candidates))
	cur := candidates[0]
	visited[cur] = true
	order = append(order, cur)

	for len(order) < len(candidates) {
		best, bestKm := -1, math.Inf(1)
		for _, j := range candidates {
			if visited[j] {
				continue
			}
			if d := dist(cur, j); best == -1 || d < bestKm {
				best, bestKm = j, d
			}
		}
		visited[best] = true
		order = append(order, best)
		cur = best
	}
	return order
}

// byScheduledTime returns stop indexes ordered by ScheduledAt, stable on input order.
func byScheduledTime(stops []Stop) []int {
	idx := identity(len(stops))
	sort.SliceStable(idx, func(a, b int) bool {
		return stops[idx[a]].ScheduledAt.Before(stops[idx[b]].ScheduledAt)
	})
	return idx
}

func pathKm(order []int, dist func(i, j int) float64) float64 {
	total := 0.0
	for i := 1; i < len(order); i++ {
		total += dist(order[i-1], order[i])
	}
	return total
}

func savings(originalKm, optimizedKm float64) Savings {
	delta := originalKm - optimizedKm
	s := Savings{DistanceKm: delta, TimeMin: geo.TravelMinutes(delta)}
	if originalKm > 0 && delta > 0 {
		s.Percentage = int(math.Round(delta / originalKm * 100))
	}
	return s
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func renumber(stops []Stop) {
	for i := range stops {
		stops[i].SequenceOrder = i
	}
}
