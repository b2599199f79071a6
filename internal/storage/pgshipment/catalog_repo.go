package pgshipment

import (
	"context"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) ListMilestones(ctx context.Context) ([]models.Milestone, error) {
	rows, err := s.db.Query(ctx, `
SELECT code, name, category, sequence, criticality, expected_duration_minutes, sla_threshold_minutes
FROM milestone_catalog
ORDER BY sequence ASC
`)
	if err != nil {
		return nil, apperr.NewStore("list milestones", err)
	}
	defer rows.Close()

	var out []models.Milestone
	for rows.Next() {
		var m models.Milestone
		if err := rows.Scan(&m.Code, &m.Name, &m.Category, &m.Sequence, &m.Criticality, &m.ExpectedDurationMinutes, &m.SLAThresholdMinutes); err != nil {
			return nil, apperr.NewStore("scan milestone", err)
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

func (s *Storage) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, type, priority FROM sources ORDER BY priority ASC`)
	if err != nil {
		return nil, apperr.NewStore("list sources", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.Type, &src.Priority); err != nil {
			return nil, apperr.NewStore("scan source", err)
		}
		out = append(out, src)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

func (s *Storage) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	var src models.Source
	err := s.db.QueryRow(ctx, `SELECT id, name, type, priority FROM sources WHERE name = $1`, name).
		Scan(&src.ID, &src.Name, &src.Type, &src.Priority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("source", name)
	}
	if err != nil {
		return nil, apperr.NewStore("get source by name", err)
	}
	return &src, nil
}
