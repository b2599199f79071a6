// Package pgshipment is the shipment-tracking backbone's transactional
// store: pgxpool bootstrap, schema init on connect, and repositories for
// shipments, events, milestones, sources, subscriptions and notification
// jobs.
package pgshipment

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Healthy satisfies httpapi's HealthChecker: a bare connectivity check
// for the /tracking/health endpoint.
func (s *Storage) Healthy(ctx context.Context) error {
	return s.db.Ping(ctx)
}
