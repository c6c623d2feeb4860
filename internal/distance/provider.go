// Package distance provides pairwise distance matrices between coordinates, either from the
// Google Distance Matrix API or from a local haversine estimate.
package distance

import (
	"context"
	"log"
	"time"

	"fieldops/internal/platform/obs"
	"fieldops/internal/types"
)

// MaxRemotePoints caps how many coordinates a remote matrix request may carry.
const MaxRemotePoints = 10

// MaxRemoteTimeout bounds the wait on the remote provider.
const MaxRemoteTimeout = 5 * time.Second

// Matrix holds pairwise distances in kilometres; Matrix[i][j] is the distance from point i
// to point j. Cells the provider could not compute are +Inf. Matrices are read-only once
// returned.
type Matrix [][]float64

// Provider returns a distance matrix for the given points.
type Provider interface {
	Matrix(ctx context.Context, points []types.Point) (Matrix, error)
}

// Source names the provider variant that produced a matrix.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Resolve asks remote for a matrix under a bounded timeout and falls back to the local
// haversine estimate on any failure. The failure is logged, never returned.
func Resolve(ctx context.Context, remote Provider, points []types.Point, timeout time.Duration) (Matrix, Source) {
	if remote == nil {
		return LocalEstimator{}.estimate(points), SourceLocal
	}
	if timeout <= 0 || timeout > MaxRemoteTimeout {
		timeout = MaxRemoteTimeout
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m, err := remote.Matrix(rctx, points)
	if err == nil && !m.square(len(points)) {
		err = errShape(len(points))
	}
	if err != nil {
		log.Printf("req_id=%s op=distance.resolve points=%d fallback=local err=%v", obs.RequestID(ctx), len(points), err)
		return LocalEstimator{}.estimate(points), SourceLocal
	}
	return m, SourceRemote
}

func (m Matrix) square(n int) bool {
	if len(m) != n {
		return false
	}
	for _, row := range m {
		if len(row) != n {
			return false
		}
	}
	return true
}
