// README: Redis-backed cache for remote distance matrices.
package distance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fieldops/internal/platform/obs"
	"fieldops/internal/types"
)

const (
	matrixKeyPrefix = "distance:matrix:"
	defaultCacheTTL = 24 * time.Hour
	// unknownCell replaces +Inf in the stored JSON.
	unknownCell = -1.0
)

// MatrixCache stores matrices keyed by the rounded coordinate list.
type MatrixCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewMatrixCache(redis *redis.Client, ttl time.Duration) *MatrixCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &MatrixCache{redis: redis, ttl: ttl}
}

// Get returns a cached matrix of size n. Any error counts as a miss.
func (c *MatrixCache) Get(ctx context.Context, key string, n int) (_ Matrix, ok bool) {
	var err error
	defer obs.Time(ctx, "distance.cache.Get")(&err)

	raw, err := c.redis.Get(ctx, matrixKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		err = nil
		return nil, false
	}
	if err != nil {
		return nil, false
	}

	var stored [][]float64
	if err = json.Unmarshal(raw, &stored); err != nil {
		return nil, false
	}
	m := Matrix(stored)
	if !m.square(n) {
		return nil, false
	}
	for i := range m {
		for j := range m[i] {
			if m[i][j] == unknownCell {
				m[i][j] = math.Inf(1)
			}
		}
	}
	return m, true
}

// Put stores m; failures are logged and otherwise ignored.
func (c *MatrixCache) Put(ctx context.Context, key string, m Matrix) {
	stored := make([][]float64, len(m))
	for i, row := range m {
		stored[i] = make([]float64, len(row))
		for j, v := range row {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				v = unknownCell
			}
			stored[i][j] = v
		}
	}
	raw, err := json.Marshal(stored)
	if err == nil {
		err = c.redis.Set(ctx, matrixKeyPrefix+key, raw, c.ttl).Err()
	}
	if err != nil {
		log.Printf("distance cache write failed: %v", err)
	}
}

// matrixKey hashes points rounded to ~1m so jitter in stored coordinates still hits.
func matrixKey(points []types.Point) string {
	var b strings.Builder
	for _, p := range points {
		fmt.Fprintf(&b, "%.5f,%.5f;", p.Lat, p.Lng)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
