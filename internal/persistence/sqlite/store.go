package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"example.com/timesheet/internal/domain"
)

const timesheetColumns = `t.id, t.user_id, t.activity_id, t.start_time, t.end_time, t.created_at, t.updated_at,
    a.id, a.user_id, a.name, a.color, a.icon, a.created_at, a.updated_at`

// Store implements domain.IntervalStore and domain.ActivityFinder on SQLite.
type Store struct {
	pool *pool
}

// Open opens (or creates) the database, applies the schema and seeds the
// global activity catalog.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	p, err := openPool(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: p}
	if err := s.migrate(ctx); err != nil {
		_ = p.close()
		return nil, err
	}
	return s, nil
}

// Close releases every connection.
func (s *Store) Close() error { return s.pool.close() }

func (s *Store) migrate(ctx context.Context) (err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite: applying schema: %w", err)
	}

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return err
	}
	defer endTransaction(&err)

	for _, a := range domain.DefaultActivities() {
		err = sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO activities (id, user_id, name, color, icon, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
			&sqlitex.ExecOptions{Args: []any{a.ID, a.OwnerID, a.Name, a.Color, a.Icon, a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano()}})
		if err != nil {
			return fmt.Errorf("sqlite: seeding activities: %w", err)
		}
	}
	return nil
}

// PutActivity adds or replaces a catalog entry.
func (s *Store) PutActivity(ctx context.Context, a domain.Activity) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT OR REPLACE INTO activities (id, user_id, name, color, icon, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
			&sqlitex.ExecOptions{Args: []any{a.ID, a.OwnerID, a.Name, a.Color, a.Icon, a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano()}})
	})
}

func (s *Store) FindActivity(ctx context.Context, activityID, userID int64) (*domain.Activity, error) {
	var found *domain.Activity
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, user_id, name, color, icon, created_at, updated_at FROM activities WHERE id = ? AND user_id IN (?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{activityID, domain.GlobalOwnerID, userID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					a := scanActivity(stmt, 0)
					found = &a
					return nil
				},
			})
	})
	return found, err
}

func (s *Store) CreateInterval(ctx context.Context, interval domain.Interval) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO timesheets (id, user_id, activity_id, start_time, end_time, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
			&sqlitex.ExecOptions{Args: []any{
				interval.ID,
				interval.UserID,
				interval.ActivityID,
				interval.StartTime.UnixNano(),
				nullableNanos(interval.EndTime),
				interval.CreatedAt.UnixNano(),
				interval.UpdatedAt.UnixNano(),
			}})
	})
}

func (s *Store) FindRunning(ctx context.Context, userID int64) (*domain.Interval, error) {
	return s.findOne(ctx, `SELECT `+timesheetColumns+`
        FROM timesheets t JOIN activities a ON a.id = t.activity_id
        WHERE t.user_id = ? AND t.end_time IS NULL`, userID)
}

func (s *Store) FindInterval(ctx context.Context, userID int64, intervalID string) (*domain.Interval, error) {
	return s.findOne(ctx, `SELECT `+timesheetColumns+`
        FROM timesheets t JOIN activities a ON a.id = t.activity_id
        WHERE t.id = ? AND t.user_id = ?`, intervalID, userID)
}

func (s *Store) StopInterval(ctx context.Context, interval domain.Interval) error {
	if interval.EndTime == nil {
		return domain.InvalidArgument("End time is required")
	}
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE timesheets SET end_time = ?, updated_at = ? WHERE id = ? AND user_id = ? AND end_time IS NULL`,
			&sqlitex.ExecOptions{Args: []any{interval.EndTime.UnixNano(), interval.UpdatedAt.UnixNano(), interval.ID, interval.UserID}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return domain.ErrNoRunningTimesheet
		}
		return nil
	})
}

func (s *Store) DeleteInterval(ctx context.Context, interval domain.Interval, _ time.Time) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`DELETE FROM timesheets WHERE id = ? AND user_id = ? AND end_time IS NOT NULL`,
			&sqlitex.ExecOptions{Args: []any{interval.ID, interval.UserID}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return domain.ErrTimesheetNotFound
		}
		return nil
	})
}

func (s *Store) ListIntervals(ctx context.Context, userID int64, filter domain.ListFilter, page domain.Page) ([]domain.Interval, int, error) {
	page = page.Normalize()

	conditions := []string{"t.user_id = ?", "t.end_time IS NOT NULL"}
	args := []any{userID}
	if filter.ActivityID != 0 {
		conditions = append(conditions, "t.activity_id = ?")
		args = append(args, filter.ActivityID)
	}
	if filter.From != nil {
		conditions = append(conditions, "t.start_time >= ?")
		args = append(args, filter.From.UnixNano())
	}
	if filter.To != nil {
		conditions = append(conditions, "t.start_time <= ?")
		args = append(args, filter.To.UnixNano())
	}
	where := strings.Join(conditions, " AND ")

	var (
		total   int
		results = make([]domain.Interval, 0, page.Limit)
	)
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `SELECT COUNT(*) FROM timesheets t WHERE `+where, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt(0)
				return nil
			},
		})
		if err != nil {
			return err
		}

		pageArgs := append(append([]any(nil), args...), page.Limit, page.Offset())
		return sqlitex.Execute(conn, `SELECT `+timesheetColumns+`
            FROM timesheets t JOIN activities a ON a.id = t.activity_id
            WHERE `+where+`
            ORDER BY t.start_time DESC, t.id DESC
            LIMIT ? OFFSET ?`, &sqlitex.ExecOptions{
			Args: pageArgs,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanInterval(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*domain.Interval, error) {
	var found *domain.Interval
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				interval := scanInterval(stmt)
				found = &interval
				return nil
			},
		})
	})
	return found, err
}

// withConn borrows a connection for fn and classifies its failure.
func (s *Store) withConn(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return classify(err)
	}
	defer s.pool.put(conn)
	return classify(fn(conn))
}

func scanInterval(stmt *sqlite.Stmt) domain.Interval {
	interval := domain.Interval{
		ID:         stmt.ColumnText(0),
		UserID:     stmt.ColumnInt64(1),
		ActivityID: stmt.ColumnInt64(2),
		StartTime:  fromNanos(stmt.ColumnInt64(3)),
		CreatedAt:  fromNanos(stmt.ColumnInt64(5)),
		UpdatedAt:  fromNanos(stmt.ColumnInt64(6)),
	}
	if stmt.ColumnType(4) != sqlite.TypeNull {
		end := fromNanos(stmt.ColumnInt64(4))
		interval.EndTime = &end
	}
	activity := scanActivity(stmt, 7)
	interval.Activity = &activity
	return interval
}

func scanActivity(stmt *sqlite.Stmt, col int) domain.Activity {
	return domain.Activity{
		ID:        stmt.ColumnInt64(col),
		OwnerID:   stmt.ColumnInt64(col + 1),
		Name:      stmt.ColumnText(col + 2),
		Color:     stmt.ColumnText(col + 3),
		Icon:      stmt.ColumnText(col + 4),
		CreatedAt: fromNanos(stmt.ColumnInt64(col + 5)),
		UpdatedAt: fromNanos(stmt.ColumnInt64(col + 6)),
	}
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

// classify maps SQLite result codes onto domain errors. Domain errors pass through.
func classify(err error) error {
	if err == nil || domain.KindOf(err) != "" {
		return err
	}
	switch code := sqlite.ErrCode(err); {
	case code == sqlite.ResultConstraintUnique:
		return domain.ErrRunningTimesheetExists
	case code == sqlite.ResultConstraintForeignKey:
		return domain.ErrActivityNotFound
	case code == sqlite.ResultConstraintCheck:
		return domain.ErrEndBeforeStart
	case code.ToPrimary() == sqlite.ResultBusy, code.ToPrimary() == sqlite.ResultLocked:
		return domain.Unavailable("store busy", err)
	case code == sqlite.ResultInterrupt:
		return domain.Unavailable("store unavailable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Unavailable("store unavailable", err)
	}
	return fmt.Errorf("sqlite: %w", err)
}
