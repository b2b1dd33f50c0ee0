// Package postgres stores timesheets in Postgres and stages their events in
// the outbox within the same transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timesheet/internal/domain"
	"example.com/timesheet/internal/events"
	"example.com/timesheet/internal/outbox"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"

	constraintOneRunning = "timesheets_one_running_per_user"
)

const timesheetColumns = `t.id::text, t.user_id, t.activity_id, t.start_time, t.end_time, t.created_at, t.updated_at,
        a.id, a.user_id, a.name, a.color, a.icon, a.created_at, a.updated_at`

// Repository provides Postgres-backed persistence for timesheets and the
// activity catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindActivity returns the activity when it is global or owned by userID.
func (r *Repository) FindActivity(ctx context.Context, activityID, userID int64) (*domain.Activity, error) {
	const query = `SELECT id, user_id, name, color, icon, created_at, updated_at
        FROM activities WHERE id=$1 AND user_id IN ($2, $3)`

	var a domain.Activity
	err := r.pool.QueryRow(ctx, query, activityID, domain.GlobalOwnerID, userID).
		Scan(&a.ID, &a.OwnerID, &a.Name, &a.Color, &a.Icon, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return &a, nil
}

// CreateInterval inserts a running interval and records timesheet.started.
// The partial unique constraint rejects a second running row per user.
func (r *Repository) CreateInterval(ctx context.Context, interval domain.Interval) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO timesheets (id, user_id, activity_id, start_time, end_time, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`

		if _, err := tx.Exec(ctx, stmt,
			interval.ID,
			interval.UserID,
			interval.ActivityID,
			interval.StartTime,
			interval.EndTime,
			interval.CreatedAt,
			interval.UpdatedAt,
		); err != nil {
			return err
		}

		return outbox.Insert(ctx, tx, outbox.Record{
			UserID:      interval.UserID,
			TimesheetID: interval.ID,
			EventType:   outbox.EventTimesheetStarted,
			Payload: events.TimesheetStarted{
				TimesheetID: interval.ID,
				UserID:      interval.UserID,
				ActivityID:  interval.ActivityID,
				StartTime:   interval.StartTime,
				OccurredAt:  interval.CreatedAt,
			},
		})
	})
}

// StopInterval sets the end time of a still-running interval and records
// timesheet.stopped.
func (r *Repository) StopInterval(ctx context.Context, interval domain.Interval) error {
	if interval.EndTime == nil {
		return domain.InvalidArgument("End time is required")
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE timesheets SET end_time=$1, updated_at=$2 WHERE id=$3 AND user_id=$4 AND end_time IS NULL`,
			*interval.EndTime, interval.UpdatedAt, interval.ID, interval.UserID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNoRunningTimesheet
		}

		return outbox.Insert(ctx, tx, outbox.Record{
			UserID:      interval.UserID,
			TimesheetID: interval.ID,
			EventType:   outbox.EventTimesheetStopped,
			Payload: events.TimesheetStopped{
				TimesheetID:     interval.ID,
				UserID:          interval.UserID,
				ActivityID:      interval.ActivityID,
				StartTime:       interval.StartTime,
				EndTime:         *interval.EndTime,
				DurationMinutes: interval.DurationMinutes(*interval.EndTime),
				OccurredAt:      interval.UpdatedAt,
			},
		})
	})
}

// DeleteInterval removes a stopped interval and records timesheet.deleted.
func (r *Repository) DeleteInterval(ctx context.Context, interval domain.Interval, deletedAt time.Time) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var activityID int64
		err := tx.QueryRow(ctx,
			`DELETE FROM timesheets WHERE id=$1 AND user_id=$2 AND end_time IS NOT NULL RETURNING activity_id`,
			interval.ID, interval.UserID,
		).Scan(&activityID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrTimesheetNotFound
			}
			return err
		}

		return outbox.Insert(ctx, tx, outbox.Record{
			UserID:      interval.UserID,
			TimesheetID: interval.ID,
			EventType:   outbox.EventTimesheetDeleted,
			Payload: events.TimesheetDeleted{
				TimesheetID: interval.ID,
				UserID:      interval.UserID,
				ActivityID:  activityID,
				OccurredAt:  deletedAt.UTC(),
			},
		})
	})
}

// FindRunning returns the user's running interval, or nil.
func (r *Repository) FindRunning(ctx context.Context, userID int64) (*domain.Interval, error) {
	query := `SELECT ` + timesheetColumns + `
        FROM timesheets t JOIN activities a ON a.id = t.activity_id
        WHERE t.user_id=$1 AND t.end_time IS NULL`
	return r.findOne(ctx, query, userID)
}

// FindInterval returns the interval when it exists and belongs to userID.
func (r *Repository) FindInterval(ctx context.Context, userID int64, intervalID string) (*domain.Interval, error) {
	query := `SELECT ` + timesheetColumns + `
        FROM timesheets t JOIN activities a ON a.id = t.activity_id
        WHERE t.id=$1 AND t.user_id=$2`
	return r.findOne(ctx, query, intervalID, userID)
}

// ListIntervals returns a page of stopped intervals, newest first, and the
// total number of matches.
func (r *Repository) ListIntervals(ctx context.Context, userID int64, filter domain.ListFilter, page domain.Page) ([]domain.Interval, int, error) {
	page = page.Normalize()

	conditions := []string{"t.user_id=$1", "t.end_time IS NOT NULL"}
	args := []any{userID}
	if filter.ActivityID != 0 {
		args = append(args, filter.ActivityID)
		conditions = append(conditions, fmt.Sprintf("t.activity_id=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("t.start_time >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("t.start_time <= $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM timesheets t WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s
        FROM timesheets t JOIN activities a ON a.id = t.activity_id
        WHERE %s
        ORDER BY t.start_time DESC, t.id DESC
        LIMIT $%d OFFSET $%d`, timesheetColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()

	results := make([]domain.Interval, 0, page.Limit)
	for rows.Next() {
		interval, err := scanInterval(rows)
		if err != nil {
			return nil, 0, classify(err)
		}
		results = append(results, *interval)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err)
	}
	return results, total, nil
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*domain.Interval, error) {
	interval, err := scanInterval(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return interval, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func scanInterval(row pgx.Row) (*domain.Interval, error) {
	var (
		interval domain.Interval
		activity domain.Activity
	)
	if err := row.Scan(
		&interval.ID, &interval.UserID, &interval.ActivityID, &interval.StartTime, &interval.EndTime, &interval.CreatedAt, &interval.UpdatedAt,
		&activity.ID, &activity.OwnerID, &activity.Name, &activity.Color, &activity.Icon, &activity.CreatedAt, &activity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	interval.Activity = &activity
	return &interval, nil
}

// classify maps driver failures onto domain errors. Domain errors pass through.
func classify(err error) error {
	if err == nil || domain.KindOf(err) != "" {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintOneRunning:
			return domain.ErrRunningTimesheetExists
		case pgErr.Code == codeForeignKeyViolation:
			return domain.ErrActivityNotFound
		case pgErr.Code == codeCheckViolation:
			return domain.ErrEndBeforeStart
		}
		return fmt.Errorf("postgres: %w", err)
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return domain.Unavailable("store unavailable", err)
	}
	return fmt.Errorf("postgres: %w", err)
}
