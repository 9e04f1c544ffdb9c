package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-timetable/internal/model"
	"github.com/stemsi/exstem-timetable/internal/service"
)

// TeacherRepository handles teacher data access.
type TeacherRepository struct {
	pool *pgxpool.Pool
}

// NewTeacherRepository creates a new TeacherRepository.
func NewTeacherRepository(pool *pgxpool.Pool) *TeacherRepository {
	return &TeacherRepository{pool: pool}
}

var _ service.TeacherRepository = (*TeacherRepository)(nil)

// Create inserts a new teacher.
func (r *TeacherRepository) Create(ctx context.Context, t *model.Teacher) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO teachers (term, username, name, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		t.Term, t.Username, t.Name, t.PasswordHash,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// ListByTerm retrieves the teachers of a term.
func (r *TeacherRepository) ListByTerm(ctx context.Context, term string) ([]model.Teacher, error) {
	return r.list(ctx,
		`SELECT id, term, username, name, password_hash, created_at, updated_at
		 FROM teachers WHERE term = $1 ORDER BY name ASC, id ASC`, term)
}

// ListByUsername retrieves every account with the username, newest first.
func (r *TeacherRepository) ListByUsername(ctx context.Context, username string) ([]model.Teacher, error) {
	return r.list(ctx,
		`SELECT id, term, username, name, password_hash, created_at, updated_at
		 FROM teachers WHERE username = $1 ORDER BY created_at DESC, id DESC`, username)
}

// Delete removes a teacher and their timetable rows in one transaction and
// returns the removed rows.
func (r *TeacherRepository) Delete(ctx context.Context, id int) ([]model.Period, error) {
	var removed []model.Period
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Lock the teacher first so an in-flight timetable write commits
		// before the rows below are collected.
		var locked int
		err := tx.QueryRow(ctx, `SELECT id FROM teachers WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return service.ErrTeacherNotFound
			}
			return fmt.Errorf("lock teacher: %w", err)
		}

		removed, err = queryPeriods(ctx, tx,
			`DELETE FROM timetable_periods WHERE teacher_id = $1
			 RETURNING `+periodColumns, id)
		if err != nil {
			return fmt.Errorf("delete periods: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM teachers WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete teacher: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return service.ErrTeacherNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *TeacherRepository) list(ctx context.Context, sql string, args ...any) ([]model.Teacher, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []model.Teacher
	for rows.Next() {
		var t model.Teacher
		if err := rows.Scan(&t.ID, &t.Term, &t.Username, &t.Name, &t.PasswordHash, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}
