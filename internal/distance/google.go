// README: Remote distance matrix backed by the Google Maps Distance Matrix API.
package distance

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"fieldops/internal/platform/obs"
	"fieldops/internal/types"
)

// matrixClient is the subset of *maps.Client the provider uses.
type matrixClient interface {
	DistanceMatrix(ctx context.Context, r *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error)
}

// GoogleMatrixProvider queries the Distance Matrix API. It is rate limited, capped at
// MaxRemotePoints and safe for concurrent use. Every failure wraps types.ErrDegraded.
type GoogleMatrixProvider struct {
	client  matrixClient
	limiter *rate.Limiter
	cache   *MatrixCache
	group   singleflight.Group
}

// NewGoogleMatrixProvider creates a provider. An empty apiKey yields a provider whose
// calls always fail so callers fall back to local estimation. cache may be nil.
func NewGoogleMatrixProvider(apiKey string, ratePerSecond float64, cache *MatrixCache) (*GoogleMatrixProvider, error) {
	p := newGoogleMatrixProvider(nil, ratePerSecond, cache)
	if apiKey == "" {
		return p, nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	p.client = client
	return p, nil
}

func newGoogleMatrixProvider(client matrixClient, ratePerSecond float64, cache *MatrixCache) *GoogleMatrixProvider {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	burst := int(math.Ceil(ratePerSecond))
	return &GoogleMatrixProvider{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		cache:   cache,
	}
}

func (p *GoogleMatrixProvider) Matrix(ctx context.Context, points []types.Point) (_ Matrix, err error) {
	defer obs.Time(ctx, "maps.DistanceMatrix")(&err)

	if p.client == nil {
		return nil, fmt.Errorf("%w: maps api key not configured", types.ErrDegraded)
	}
	if len(points) > MaxRemotePoints {
		return nil, fmt.Errorf("%w: %d points exceeds remote limit of %d", types.ErrDegraded, len(points), MaxRemotePoints)
	}
	if len(points) == 0 {
		return Matrix{}, nil
	}

	key := matrixKey(points)
	if p.cache != nil {
		if m, ok := p.cache.Get(ctx, key, len(points)); ok {
			return m, nil
		}
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.fetch(ctx, points)
	})
	if err != nil {
		return nil, err
	}
	m := v.(Matrix)

	if p.cache != nil {
		p.cache.Put(ctx, key, m)
	}
	return m, nil
}

func (p *GoogleMatrixProvider) fetch(ctx context.Context, points []types.Point) (Matrix, error) {
	if !p.limiter.Allow() {
		return nil, fmt.Errorf("%w: maps rate limit exceeded", types.ErrDegraded)
	}

	locations := make([]string, len(points))
	for i, pt := range points {
		locations[i] = fmt.Sprintf("%f,%f", pt.Lat, pt.Lng)
	}

	resp, err := p.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      locations,
		Destinations: locations,
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsMetric,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: maps api error: %v", types.ErrDegraded, err)
	}

	n := len(points)
	if resp == nil || len(resp.Rows) != n {
		return nil, errShape(n)
	}

	m := make(Matrix, n)
	for i, row := range resp.Rows {
		if len(row.Elements) != n {
			return nil, errShape(n)
		}
		m[i] = make([]float64, n)
		for j, el := range row.Elements {
			switch {
			case i == j:
				m[i][j] = 0
			case el == nil || el.Status != "OK":
				m[i][j] = math.Inf(1)
			default:
				m[i][j] = float64(el.Distance.Meters) / 1000.0
			}
		}
	}
	return m, nil
}

func errShape(n int) error {
	return fmt.Errorf("%w: matrix response does not match %d points", types.ErrDegraded, n)
}
