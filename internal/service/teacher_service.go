package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-timetable/internal/model"
)

// TeacherRepository is the teacher storage.
type TeacherRepository interface {
	Create(ctx context.Context, t *model.Teacher) error
	ListByTerm(ctx context.Context, term string) ([]model.Teacher, error)
	ListByUsername(ctx context.Context, username string) ([]model.Teacher, error)
	// Delete removes the teacher together with their timetable rows and
	// returns the removed rows. It returns ErrTeacherNotFound when no such
	// teacher exists.
	Delete(ctx context.Context, id int) ([]model.Period, error)
}

// TeacherService manages teachers per term.
type TeacherService struct {
	teacherRepo TeacherRepository
	auth        *AuthService
	timetable   *TimetableService
	log         zerolog.Logger
}

// NewTeacherService creates a new TeacherService.
func NewTeacherService(teacherRepo TeacherRepository, auth *AuthService, timetable *TimetableService, log zerolog.Logger) *TeacherService {
	return &TeacherService{
		teacherRepo: teacherRepo,
		auth:        auth,
		timetable:   timetable,
		log:         log.With().Str("component", "teacher_service").Logger(),
	}
}

// Create hashes the password and stores a new teacher.
func (s *TeacherService) Create(ctx context.Context, req *model.CreateTeacherRequest) (*model.Teacher, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	t := &model.Teacher{
		Term:         strings.TrimSpace(req.Term),
		Username:     strings.TrimSpace(req.Username),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
	}
	if err := s.teacherRepo.Create(ctx, t); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create teacher: %w", err)
	}

	s.log.Info().Str("term", t.Term).Int("teacher_id", t.ID).Msg("Teacher created")
	return t, nil
}

// ListByTerm returns the teachers of a term ordered by name.
func (s *TeacherService) ListByTerm(ctx context.Context, term string) ([]model.Teacher, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, &ValidationError{Field: "term", Reason: "is required"}
	}
	teachers, err := s.teacherRepo.ListByTerm(ctx, term)
	if err != nil {
		return nil, err
	}
	if teachers == nil {
		teachers = []model.Teacher{}
	}
	return teachers, nil
}

// Delete removes a teacher and cascades to their timetable rows, so no
// orphaned periods keep occupying class slots.
func (s *TeacherService) Delete(ctx context.Context, id int) (int, error) {
	removed, err := s.teacherRepo.Delete(ctx, id)
	if err != nil {
		return 0, err
	}

	s.log.Info().Int("teacher_id", id).Int("periods_removed", len(removed)).Msg("Teacher deleted")
	s.timetable.AfterTeacherRemoved(ctx, id, removed)
	return len(removed), nil
}
