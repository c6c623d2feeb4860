package distance

import (
	"context"

	"fieldops/internal/geo"
	"fieldops/internal/types"
)

// LocalEstimator computes haversine distances. It never fails.
type LocalEstimator struct{}

func (l LocalEstimator) Matrix(_ context.Context, points []types.Point) (Matrix, error) {
	return l.estimate(points), nil
}

func (LocalEstimator) estimate(points []types.Point) Matrix {
	m := make(Matrix, len(points))
	for i := range points {
		m[i] = make([]float64, len(points))
		for j := range points {
			if i == j {
				continue
			}
			m[i][j] = geo.DistanceKm(points[i], points[j])
		}
	}
	return m
}
