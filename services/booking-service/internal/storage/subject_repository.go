package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
)

const subjectColumns = `id, name, timezone, business_hours, calendar_provider, calendar_id, calendar_refresh_token`

func scanSubject(row pgx.Row) (model.Subject, error) {
	var s model.Subject
	var hours, provider string
	if err := row.Scan(&s.ID, &s.Name, &s.Timezone, &hours, &provider, &s.CalendarID, &s.CalendarRefreshToken); err != nil {
		return model.Subject{}, err
	}
	bh, err := model.ParseBusinessHours(hours)
	if err != nil {
		return model.Subject{}, fmt.Errorf("subject %s: %w", s.ID, err)
	}
	s.BusinessHours = bh
	s.CalendarProvider = model.CalendarProvider(provider)
	return s, nil
}

func (r *BookingRepository) GetSubject(ctx context.Context, subjectID string) (model.Subject, error) {
	s, err := scanSubject(r.pool.QueryRow(ctx, `
		SELECT `+subjectColumns+`
		FROM subjects
		WHERE id = $1
	`, subjectID))
	if IsNotFound(err) {
		return model.Subject{}, fmt.Errorf("%w: %s", model.ErrSubjectNotFound, subjectID)
	}
	return s, classify(err)
}

func (r *BookingRepository) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Subject, error) {
		return scanSubject(row)
	})
	return out, classify(err)
}

// UpsertSubject creates or replaces a subject. An empty refresh token keeps
// the stored one.
func (r *BookingRepository) UpsertSubject(ctx context.Context, s model.Subject) error {
	if _, err := timeparse.LoadLocation(s.Timezone); err != nil {
		return err
	}
	if err := s.BusinessHours.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subjects (id, name, timezone, business_hours, calendar_provider, calendar_id, calendar_refresh_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name,
		              timezone = EXCLUDED.timezone,
		              business_hours = EXCLUDED.business_hours,
		              calendar_provider = EXCLUDED.calendar_provider,
		              calendar_id = EXCLUDED.calendar_id,
		              calendar_refresh_token = COALESCE(NULLIF(EXCLUDED.calendar_refresh_token, ''), subjects.calendar_refresh_token),
		              updated_at = now()
	`, s.ID, s.Name, s.Timezone, s.BusinessHours.String(), string(s.CalendarProvider), s.CalendarID, s.CalendarRefreshToken)
	return classify(err)
}
