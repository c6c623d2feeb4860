// README: Technician, skill and time-off store backed by PostgreSQL.
package technician

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

func (s *Store) Create(ctx context.Context, t *Technician) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO technicians (id, tenant_id, name, active)
		VALUES ($1, $2, $3, $4)`,
		string(t.ID), string(t.TenantID), t.Name, t.Active,
	)
	return err
}

func (s *Store) Get(ctx context.Context, tenantID, id types.ID) (*Technician, error) {
	var t Technician
	err := s.db.QueryRow(ctx, `
		SELECT id, tenant_id, name, active
		FROM technicians
		WHERE tenant_id = $1 AND id = $2`, string(tenantID), string(id),
	).Scan(&t.ID, &t.TenantID, &t.Name, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("technician %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActive returns the tenant's active technicians in a stable order.
func (s *Store) ListActive(ctx context.Context, tenantID types.ID) ([]Technician, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, name, active
		FROM technicians
		WHERE tenant_id = $1 AND active
		ORDER BY created_at ASC, id ASC`, string(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Technician
	for rows.Next() {
		var t Technician
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.Active); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SetSkill(ctx context.Context, tenantID, userID, serviceID types.ID, level SkillLevel) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO technician_skills (user_id, tenant_id, service_id, level)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, service_id, tenant_id) DO UPDATE SET level = EXCLUDED.level`,
		string(userID), string(tenantID), string(serviceID), string(level),
	)
	return err
}

// SkillLevel returns SkillNone when nothing is recorded.
func (s *Store) SkillLevel(ctx context.Context, tenantID, userID, serviceID types.ID) (SkillLevel, error) {
	var level string
	err := s.db.QueryRow(ctx, `
		SELECT level FROM technician_skills
		WHERE user_id = $1 AND service_id = $2 AND tenant_id = $3`,
		string(userID), string(serviceID), string(tenantID),
	).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return SkillNone, nil
	}
	if err != nil {
		return SkillNone, err
	}
	return SkillLevel(level), nil
}

func (s *Store) TechniciansForService(ctx context.Context, tenantID, serviceID types.ID) ([]Skill, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, level FROM technician_skills
		WHERE service_id = $1 AND tenant_id = $2`,
		string(serviceID), string(tenantID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		var sk Skill
		var level string
		if err := rows.Scan(&sk.UserID, &level); err != nil {
			return nil, err
		}
		sk.Level = SkillLevel(level)
		out = append(out, sk)
	}
	return out, rows.Err()
}

func (s *Store) AddTimeOff(ctx context.Context, tenantID, userID types.ID, start, end time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO technician_time_off (user_id, tenant_id, starts_at, ends_at)
		VALUES ($1, $2, $3, $4)`,
		string(userID), string(tenantID), start, end,
	)
	return err
}

// HasTimeOff reports whether any time-off interval overlaps [start, end).
func (s *Store) HasTimeOff(ctx context.Context, userID types.ID, start, end time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM technician_time_off
			WHERE user_id = $1 AND starts_at < $3 AND ends_at > $2
		)`, string(userID), start, end,
	).Scan(&exists)
	return exists, err
}
