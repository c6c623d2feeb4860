// README: Location log backed by PostgreSQL (append-only).
package location

import (
	"context"
	"errors"

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

func (s *Store) Append(ctx context.Context, l *TechnicianLocation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO technician_locations (
			id, user_id, tenant_id, lat, lng, accuracy, heading, speed, status, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(l.ID), string(l.UserID), string(l.TenantID), l.Lat, l.Lng,
		l.Accuracy, l.Heading, l.Speed, string(l.Status), l.RecordedAt,
	)
	return err
}

// Latest returns the most recent entry for userID, or nil when there is none.
func (s *Store) Latest(ctx context.Context, userID types.ID) (*TechnicianLocation, error) {
	var (
		l      TechnicianLocation
		status string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, tenant_id, lat, lng, accuracy, heading, speed, status, recorded_at
		FROM technician_locations
		WHERE user_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`, string(userID),
	).Scan(&l.ID, &l.UserID, &l.TenantID, &l.Lat, &l.Lng, &l.Accuracy, &l.Heading, &l.Speed, &status, &l.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.Status = Status(status)
	return &l, nil
}
