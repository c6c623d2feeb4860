// README: Route store backed by PostgreSQL (upsert + history in one transaction).
package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fieldops/internal/distance"
	"fieldops/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const routeColumns = `
	id, tenant_id, technician_id, route_date, stops, total_distance_km, total_duration_min,
	savings_distance_km, savings_time_min, savings_percentage, source, status, version,
	optimized_at, applied_at`

// Upsert replaces the route for (tenant, technician, date), resetting it to PENDING and
// bumping its version, then appends a history row. r.ID and r.Version are updated to the
// stored values.
func (s *Store) Upsert(ctx context.Context, r *OptimizedRoute) error {
	stops, err := json.Marshal(r.Stops)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO optimized_routes (`+routeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'PENDING', 1, $12, NULL)
		ON CONFLICT (tenant_id, technician_id, route_date) DO UPDATE SET
			stops = EXCLUDED.stops,
			total_distance_km = EXCLUDED.total_distance_km,
			total_duration_min = EXCLUDED.total_duration_min,
			savings_distance_km = EXCLUDED.savings_distance_km,
			savings_time_min = EXCLUDED.savings_time_min,
			savings_percentage = EXCLUDED.savings_percentage,
			source = EXCLUDED.source,
			status = 'PENDING',
			version = optimized_routes.version + 1,
			optimized_at = EXCLUDED.optimized_at,
			applied_at = NULL
		RETURNING id, version`,
		string(r.ID), string(r.TenantID), string(r.TechnicianID), r.Date, stops,
		r.TotalDistanceKm, r.TotalDurationMin,
		r.Savings.DistanceKm, r.Savings.TimeMin, r.Savings.Percentage,
		string(r.Source), r.OptimizedAt,
	).Scan(&r.ID, &r.Version)
	if err != nil {
		return err
	}
	r.Status = StatusPending
	r.AppliedAt = nil

	if err := appendHistory(ctx, tx, &HistoryEntry{
		RouteID:         r.ID,
		Version:         r.Version,
		Status:          r.Status,
		Stops:           r.Stops,
		TotalDistanceKm: r.TotalDistanceKm,
		CreatedAt:       r.OptimizedAt,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, tenantID, id types.ID) (*OptimizedRoute, error) {
	row := s.db.QueryRow(ctx, `SELECT `+routeColumns+`
		FROM optimized_routes
		WHERE tenant_id = $1 AND id = $2`, string(tenantID), string(id))
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("route %s: %w", id, types.ErrNotFound)
	}
	return r, err
}

func (s *Store) GetByTechnicianDate(ctx context.Context, tenantID, technicianID types.ID, date time.Time) (*OptimizedRoute, error) {
	row := s.db.QueryRow(ctx, `SELECT `+routeColumns+`
		FROM optimized_routes
		WHERE tenant_id = $1 AND technician_id = $2 AND route_date = $3`,
		string(tenantID), string(technicianID), date)
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("route for %s on %s: %w", technicianID, date.Format(time.DateOnly), types.ErrNotFound)
	}
	return r, err
}

// UpdateStatus moves a route between statuses if it still has the expected status and
// version. It reports false when the precondition no longer holds.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE optimized_routes
		SET status = $1,
		    version = version + 1,
		    applied_at = CASE WHEN $1 = 'APPLIED' THEN NOW() ELSE applied_at END
		WHERE id = $2 AND status = $3 AND version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendHistory(ctx context.Context, h *HistoryEntry) error {
	return appendHistory(ctx, s.db, h)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendHistory(ctx context.Context, db execer, h *HistoryEntry) error {
	stops, err := json.Marshal(h.Stops)
	if err != nil {
		return err
	}
	if h.ID == "" {
		h.ID = types.NewID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err = db.Exec(ctx, `
		INSERT INTO route_history (id, route_id, version, status, stops, total_distance_km, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(h.ID), string(h.RouteID), h.Version, string(h.Status), stops, h.TotalDistanceKm, h.CreatedAt,
	)
	return err
}

func scanRoute(row pgx.Row) (*OptimizedRoute, error) {
	var (
		r      OptimizedRoute
		stops  []byte
		source string
		status string
	)
	err := row.Scan(
		&r.ID, &r.TenantID, &r.TechnicianID, &r.Date, &stops, &r.TotalDistanceKm, &r.TotalDurationMin,
		&r.Savings.DistanceKm, &r.Savings.TimeMin, &r.Savings.Percentage, &source, &status, &r.Version,
		&r.OptimizedAt, &r.AppliedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stops, &r.Stops); err != nil {
		return nil, fmt.Errorf("decode stops: %w", err)
	}
	r.Source = distance.Source(source)
	r.Status = Status(status)
	return &r, nil
}
