// README: Location service records pings, serves current positions and computes ETAs.
package location

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fieldops/internal/geo"
	"fieldops/internal/types"
)

type Repository interface {
	Append(ctx context.Context, l *TechnicianLocation) error
	Latest(ctx context.Context, userID types.ID) (*TechnicianLocation, error)
}

type Service struct {
	store   Repository
	cache   *Cache
	mirrors []Mirror
}

// NewService builds the tracker. cache may be nil, in which case reads go to the store
// and Nearby is unavailable.
func NewService(store Repository, cache *Cache, mirrors ...Mirror) *Service {
	return &Service{store: store, cache: cache, mirrors: mirrors}
}

// Record appends the ping to the location log. The log write is the only step whose
// failure is returned.
func (s *Service) Record(ctx context.Context, p Ping) (*TechnicianLocation, error) {
	if p.UserID == "" || p.TenantID == "" {
		return nil, fmt.Errorf("user and tenant are required: %w", types.ErrInvalidInput)
	}
	if err := geo.Validate(p.Position); err != nil {
		return nil, err
	}
	if p.Status == "" {
		p.Status = StatusIdle
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", p.Status, types.ErrInvalidInput)
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now()
	}

	l := &TechnicianLocation{
		ID:         types.NewID(),
		UserID:     p.UserID,
		TenantID:   p.TenantID,
		Lat:        p.Position.Lat,
		Lng:        p.Position.Lng,
		Accuracy:   p.Accuracy,
		Heading:    p.Heading,
		Speed:      p.Speed,
		Status:     p.Status,
		RecordedAt: p.RecordedAt.UTC(),
	}
	if err := s.store.Append(ctx, l); err != nil {
		return nil, err
	}

	newest := true
	if s.cache != nil {
		ok, err := s.cache.SetLatest(ctx, l)
		if err != nil {
			log.Printf("location cache update failed: user=%s err=%v", l.UserID, err)
		} else {
			newest = ok
		}
	}
	// Mirrors only carry the latest position; an out-of-order ping stays in history.
	if !newest {
		return l, nil
	}
	for _, m := range s.mirrors {
		if err := m.Mirror(ctx, l); err != nil {
			log.Printf("location mirror failed: user=%s err=%v", l.UserID, err)
		}
	}
	return l, nil
}

// Current returns the technician's most recent location, or nil when none is known
// within tenantID.
func (s *Service) Current(ctx context.Context, tenantID, userID types.ID) (*TechnicianLocation, error) {
	l, err := s.latest(ctx, userID)
	if err != nil || l == nil {
		return nil, err
	}
	if l.TenantID != tenantID {
		return nil, nil
	}
	return l, nil
}

func (s *Service) latest(ctx context.Context, userID types.ID) (*TechnicianLocation, error) {
	if s.cache != nil {
		l, err := s.cache.Latest(ctx, userID)
		if err != nil {
			log.Printf("location cache read failed: user=%s err=%v", userID, err)
		}
		if l != nil {
			return l, nil
		}
	}

	l, err := s.store.Latest(ctx, userID)
	if err != nil || l == nil {
		return nil, err
	}
	if s.cache != nil {
		if _, err := s.cache.SetLatest(ctx, l); err != nil {
			log.Printf("location cache warm failed: user=%s err=%v", userID, err)
		}
	}
	return l, nil
}

// ETA returns nil when the technician has no known location within tenantID.
func (s *Service) ETA(ctx context.Context, tenantID, technicianID types.ID, destination types.Point) (*ETA, error) {
	if err := geo.Validate(destination); err != nil {
		return nil, err
	}
	l, err := s.Current(ctx, tenantID, technicianID)
	if err != nil || l == nil {
		return nil, err
	}
	eta := EstimateETA(l.Point(), destination)
	return &eta, nil
}

// EstimateETA assumes straight-line travel at geo.AverageSpeedKmh.
func EstimateETA(from, to types.Point) ETA {
	km := geo.DistanceKm(from, to)
	return ETA{Minutes: geo.TravelMinutes(km), DistanceKm: km}
}

var errNoCache = errors.New("location cache not configured")

func (s *Service) Nearby(ctx context.Context, tenantID types.ID, p types.Point, radiusKm float64) ([]Nearby, error) {
	if err := geo.Validate(p); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("radius must be positive: %w", types.ErrInvalidInput)
	}
	if s.cache == nil {
		return nil, errNoCache
	}
	return s.cache.Nearby(ctx, tenantID, p, radiusKm)
}
