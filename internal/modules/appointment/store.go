// README: Appointment store backed by PostgreSQL.
package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fieldops/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, tenant_id, customer_id, customer_name, service_id, service_name,
	technician_id, address, lat, lng, scheduled_at, duration_minutes, status, created_at`

func (s *Store) Create(ctx context.Context, a *Appointment) error {
	var lat, lng *float64
	if a.Location != nil {
		lat, lng = &a.Location.Lat, &a.Location.Lng
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (
			id, tenant_id, customer_id, customer_name, service_id, service_name,
			technician_id, address, lat, lng, scheduled_at, duration_minutes, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(a.ID), string(a.TenantID), string(a.CustomerID), a.CustomerName,
		string(a.ServiceID), a.ServiceName, idPtr(a.TechnicianID), a.Address,
		lat, lng, a.ScheduledAt, a.DurationMinutes, string(a.Status), a.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, tenantID, id types.ID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2`, string(tenantID), string(id))

	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointment %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByTechnicianAndDate returns the technician's active appointments on date's UTC day,
// ordered by scheduled time.
func (s *Store) FindByTechnicianAndDate(ctx context.Context, tenantID, technicianID types.ID, date time.Time) ([]Appointment, error) {
	start, end := DayBounds(date)
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND technician_id = $2
		  AND scheduled_at >= $3 AND scheduled_at < $4
		  AND status = ANY($5)
		ORDER BY scheduled_at ASC, id ASC`,
		string(tenantID), string(technicianID), start, end, activeStrings(),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// CountActiveOnDate counts the technician's active appointments on date's UTC day.
func (s *Store) CountActiveOnDate(ctx context.Context, tenantID, technicianID types.ID, date time.Time) (int, error) {
	start, end := DayBounds(date)
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE tenant_id = $1 AND technician_id = $2
		  AND scheduled_at >= $3 AND scheduled_at < $4
		  AND status = ANY($5)`,
		string(tenantID), string(technicianID), start, end, activeStrings(),
	).Scan(&n)
	return n, err
}

// ListRecentUnassigned returns up to limit unassigned active appointments, newest first.
func (s *Store) ListRecentUnassigned(ctx context.Context, tenantID types.ID, limit int) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND technician_id IS NULL AND status = ANY($2)
		ORDER BY created_at DESC, id ASC
		LIMIT $3`,
		string(tenantID), activeStrings(), limit,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// UpdateStatus moves an appointment from one status to another. It reports false when the
// row no longer has the expected status.
func (s *Store) UpdateStatus(ctx context.Context, tenantID, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1
		WHERE tenant_id = $2 AND id = $3 AND status = $4`,
		string(to), string(tenantID), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a            Appointment
		technicianID *string
		lat, lng     *float64
		status       string
	)
	err := row.Scan(
		&a.ID, &a.TenantID, &a.CustomerID, &a.CustomerName, &a.ServiceID, &a.ServiceName,
		&technicianID, &a.Address, &lat, &lng, &a.ScheduledAt, &a.DurationMinutes, &status, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	if technicianID != nil {
		id := types.ID(*technicianID)
		a.TechnicianID = &id
	}
	if lat != nil && lng != nil {
		a.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &a, nil
}

func activeStrings() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

func idPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}
