package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-timetable/internal/model"
	"github.com/stemsi/exstem-timetable/internal/service"
)

const periodColumns = `term, teacher_id, period_number, class_name,
	monday, tuesday, wednesday, thursday, friday, saturday, sunday,
	start_day, end_day`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TimetableRepository handles timetable period data access.
type TimetableRepository struct {
	pool *pgxpool.Pool
}

// NewTimetableRepository creates a new TimetableRepository.
func NewTimetableRepository(pool *pgxpool.Pool) *TimetableRepository {
	return &TimetableRepository{pool: pool}
}

var _ service.TimetableStore = (*TimetableRepository)(nil)

// ListPeriods retrieves a teacher's periods ordered by period number.
func (r *TimetableRepository) ListPeriods(ctx context.Context, term string, teacherID int) ([]model.Period, error) {
	return listPeriods(ctx, r.pool, term, teacherID)
}

// ListPeriodsByClassAndNumber retrieves the rows holding one class slot,
// excluding those of excludeTeacherID.
func (r *TimetableRepository) ListPeriodsByClassAndNumber(ctx context.Context, term, className string, periodNumber, excludeTeacherID int) ([]model.Period, error) {
	return listPeriodsByClassAndNumber(ctx, r.pool, term, className, periodNumber, excludeTeacherID)
}

// ListPeriodsByClass retrieves every row taught to a class.
func (r *TimetableRepository) ListPeriodsByClass(ctx context.Context, term, className string) ([]model.Period, error) {
	return listPeriodsByClass(ctx, r.pool, term, className)
}

// ResolveTeacherNames maps teacher ids to names. Missing teachers are left out.
func (r *TimetableRepository) ResolveTeacherNames(ctx context.Context, ids []int) (map[int]string, error) {
	names := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT id, name FROM teachers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// ListClasses retrieves the distinct class names scheduled in term.
func (r *TimetableRepository) ListClasses(ctx context.Context, term string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT class_name FROM timetable_periods
		 WHERE term = $1
		 ORDER BY class_name ASC`, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		classes = append(classes, name)
	}
	return classes, rows.Err()
}

// WithTx runs fn inside a READ COMMITTED transaction.
func (r *TimetableRepository) WithTx(ctx context.Context, fn func(tx service.TimetableTx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&timetableTx{tx: tx})
	})
}

// timetableTx implements service.TimetableTx on a pgx transaction.
type timetableTx struct {
	tx pgx.Tx
}

func (t *timetableTx) ListPeriods(ctx context.Context, term string, teacherID int) ([]model.Period, error) {
	return listPeriods(ctx, t.tx, term, teacherID)
}

func (t *timetableTx) ListPeriodsByClassAndNumber(ctx context.Context, term, className string, periodNumber, excludeTeacherID int) ([]model.Period, error) {
	return listPeriodsByClassAndNumber(ctx, t.tx, term, className, periodNumber, excludeTeacherID)
}

func (t *timetableTx) ListPeriodsByClass(ctx context.Context, term, className string) ([]model.Period, error) {
	return listPeriodsByClass(ctx, t.tx, term, className)
}

// TeacherTerm reads the teacher's term under FOR SHARE, so a concurrent
// delete waits for this transaction.
func (t *timetableTx) TeacherTerm(ctx context.Context, teacherID int) (string, error) {
	var term string
	err := t.tx.QueryRow(ctx, `SELECT term FROM teachers WHERE id = $1 FOR SHARE`, teacherID).Scan(&term)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", service.ErrTeacherNotFound
		}
		return "", fmt.Errorf("get teacher term: %w", err)
	}
	return term, nil
}

// LockKeys takes a transaction-scoped advisory lock per key. Locks are
// released at commit or rollback.
func (t *timetableTx) LockKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("advisory lock %q: %w", key, err)
		}
	}
	return nil
}

// ReplaceAll swaps the teacher's rows for the given set.
func (t *timetableTx) ReplaceAll(ctx context.Context, term string, teacherID int, periods []model.Period) error {
	if _, err := t.tx.Exec(ctx,
		`DELETE FROM timetable_periods WHERE term = $1 AND teacher_id = $2`,
		term, teacherID,
	); err != nil {
		return fmt.Errorf("delete periods: %w", err)
	}

	if len(periods) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(periods))
	for _, p := range periods {
		rows = append(rows, []any{
			term, teacherID, p.PeriodNumber, p.ClassName,
			p.Monday, p.Tuesday, p.Wednesday, p.Thursday, p.Friday, p.Saturday, p.Sunday,
			p.StartDay, p.EndDay,
		})
	}

	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"timetable_periods"},
		[]string{
			"term", "teacher_id", "period_number", "class_name",
			"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
			"start_day", "end_day",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert periods: %w", err)
	}
	return nil
}

func listPeriods(ctx context.Context, q querier, term string, teacherID int) ([]model.Period, error) {
	return queryPeriods(ctx, q,
		`SELECT `+periodColumns+`
		 FROM timetable_periods
		 WHERE term = $1 AND teacher_id = $2
		 ORDER BY period_number ASC`,
		term, teacherID,
	)
}

func listPeriodsByClassAndNumber(ctx context.Context, q querier, term, className string, periodNumber, excludeTeacherID int) ([]model.Period, error) {
	return queryPeriods(ctx, q,
		`SELECT `+periodColumns+`
		 FROM timetable_periods
		 WHERE term = $1 AND class_name = $2 AND period_number = $3 AND teacher_id <> $4
		 ORDER BY start_day ASC, teacher_id ASC`,
		term, className, periodNumber, excludeTeacherID,
	)
}

func listPeriodsByClass(ctx context.Context, q querier, term, className string) ([]model.Period, error) {
	return queryPeriods(ctx, q,
		`SELECT `+periodColumns+`
		 FROM timetable_periods
		 WHERE term = $1 AND class_name = $2
		 ORDER BY period_number ASC, start_day ASC, teacher_id ASC`,
		term, className,
	)
}

func queryPeriods(ctx context.Context, q querier, sql string, args ...any) ([]model.Period, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []model.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanPeriod(row pgx.Row) (model.Period, error) {
	var p model.Period
	err := row.Scan(
		&p.Term, &p.TeacherID, &p.PeriodNumber, &p.ClassName,
		&p.Monday, &p.Tuesday, &p.Wednesday, &p.Thursday, &p.Friday, &p.Saturday, &p.Sunday,
		&p.StartDay, &p.EndDay,
	)
	return p, err
}
