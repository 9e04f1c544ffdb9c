package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-timetable/internal/config"
	"github.com/stemsi/exstem-timetable/internal/model"
	"golang.org/x/sync/singleflight"
)

// cellSeparator joins teacher name and assignment in class view cells.
const cellSeparator = " — "

// classViewBuildTimeout bounds a shared class grid build, which runs
// detached from the caller that started it.
const classViewBuildTimeout = 10 * time.Second

// ClassViewCache stores rendered class grids between writes. Every committed
// change bumps the class generation; a grid is stored only under the
// generation read before its rows were.
type ClassViewCache interface {
	Get(ctx context.Context, term, className string) ([]model.ClassSlot, bool, error)
	Generation(ctx context.Context, term, className string) (int64, error)
	SetIfGeneration(ctx context.Context, term, className string, gen int64, slots []model.ClassSlot) (bool, error)
	Invalidate(ctx context.Context, term string, classNames []string) error
}

// ClassUpdateNotifier announces committed timetable changes per class.
type ClassUpdateNotifier interface {
	PublishClassUpdate(ctx context.Context, update model.ClassUpdate) error
}

// TimetableService replaces teacher timetables under the class slot
// conflict rule and serves the teacher and class views.
type TimetableService struct {
	store    TimetableStore
	cache    ClassViewCache
	notifier ClassUpdateNotifier
	views    singleflight.Group
	log      zerolog.Logger
}

// NewTimetableService creates a new TimetableService. cache and notifier may
// be nil.
func NewTimetableService(store TimetableStore, cache ClassViewCache, notifier ClassUpdateNotifier, log zerolog.Logger) *TimetableService {
	return &TimetableService{
		store:    store,
		cache:    cache,
		notifier: notifier,
		log:      log.With().Str("component", "timetable_service").Logger(),
	}
}

// BuildPeriods numbers the submitted entries by position (1-based), applies
// the default day window and drops entries without a class. Windows of the
// kept entries are validated.
func BuildPeriods(term string, teacherID int, inputs []model.PeriodInput) ([]model.Period, error) {
	periods := make([]model.Period, 0, len(inputs))
	for i, in := range inputs {
		className := strings.TrimSpace(in.ClassName)
		if className == "" {
			continue
		}

		p := model.Period{
			Term:               term,
			TeacherID:          teacherID,
			PeriodNumber:       i + 1,
			ClassName:          className,
			WeekdayAssignments: in.WeekdayAssignments.Map(strings.TrimSpace),
			StartDay:           model.DefaultDay,
			EndDay:             model.DefaultDay,
		}
		if in.StartDay != nil {
			p.StartDay = *in.StartDay
		}
		if in.EndDay != nil {
			p.EndDay = *in.EndDay
		}

		if p.StartDay < 1 || p.EndDay < 1 {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("periods[%d]", i),
				Reason: "day window bounds must be positive",
			}
		}
		if p.StartDay > p.EndDay {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("periods[%d]", i),
				Reason: fmt.Sprintf("start_day %d is after end_day %d", p.StartDay, p.EndDay),
			}
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// ReplaceTimetable installs inputs as the teacher's complete timetable for
// term. Every candidate is checked against the persisted rows of other
// teachers inside the same transaction that swaps the rows, so either the new
// set is fully visible or the old set stays untouched. Conflicts come back as
// *ConflictError, bad input as *ValidationError. Rows are only written into
// the teacher's own term; an unknown teacher gives ErrTeacherNotFound.
func (s *TimetableService) ReplaceTimetable(ctx context.Context, term string, teacherID int, inputs []model.PeriodInput) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return &ValidationError{Field: "term", Reason: "is required"}
	}
	if teacherID <= 0 {
		return &ValidationError{Field: "teacher_id", Reason: "is required"}
	}
	if len(inputs) == 0 {
		return &ValidationError{Field: "periods", Reason: "at least one period is required"}
	}

	candidates, err := BuildPeriods(term, teacherID, inputs)
	if err != nil {
		return err
	}

	var previous []model.Period
	err = s.store.WithTx(ctx, func(tx TimetableTx) error {
		if err := tx.LockKeys(ctx, lockKeys(term, teacherID, candidates)); err != nil {
			return fmt.Errorf("lock slots: %w", err)
		}

		teacherTerm, err := tx.TeacherTerm(ctx, teacherID)
		if err != nil {
			return err
		}
		if teacherTerm != term {
			return &ValidationError{
				Field:  "term",
				Reason: fmt.Sprintf("teacher %d belongs to term %q", teacherID, teacherTerm),
			}
		}

		previous, err = tx.ListPeriods(ctx, term, teacherID)
		if err != nil {
			return fmt.Errorf("list current periods: %w", err)
		}

		for _, c := range candidates {
			conflict, err := DetectConflict(ctx, tx, c, teacherID)
			if err != nil {
				return err
			}
			if conflict != nil {
				return conflict
			}
		}

		return tx.ReplaceAll(ctx, term, teacherID, candidates)
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.log.Warn().
				Str("term", term).
				Int("teacher_id", teacherID).
				Str("class", conflict.ClassName).
				Int("period", conflict.PeriodNumber).
				Int("other_teacher_id", conflict.OtherTeacherID).
				Msg("Timetable rejected")
			return conflict
		}
		return fmt.Errorf("replace timetable: %w", err)
	}

	s.log.Info().
		Str("term", term).
		Int("teacher_id", teacherID).
		Int("periods", len(candidates)).
		Msg("Timetable replaced")

	s.afterCommit(ctx, term, teacherID, touchedClasses(previous, candidates))
	return nil
}

// afterCommit drops cached class grids and announces the change. Failures
// are logged only: the write already committed. Builds already in flight
// are forgotten so later readers start from the committed rows.
func (s *TimetableService) afterCommit(ctx context.Context, term string, teacherID int, classes []string) {
	if len(classes) == 0 {
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, term, classes); err != nil {
			s.log.Error().Err(err).Str("term", term).Strs("classes", classes).Msg("Class view invalidation failed")
		}
	}
	for _, className := range classes {
		s.views.Forget(config.CacheKey.ClassViewKey(term, className))
	}
	if s.notifier != nil {
		now := time.Now().UTC()
		for _, className := range classes {
			update := model.ClassUpdate{Term: term, ClassName: className, TeacherID: teacherID, At: now}
			if err := s.notifier.PublishClassUpdate(ctx, update); err != nil {
				s.log.Error().Err(err).Str("term", term).Str("class", className).Msg("Class update publish failed")
			}
		}
	}
}

// GetTeacherTimetable returns the teacher's periods ordered by period number.
// A teacher without rows gets an empty slice.
func (s *TimetableService) GetTeacherTimetable(ctx context.Context, term string, teacherID int) ([]model.Period, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, &ValidationError{Field: "term", Reason: "is required"}
	}
	if teacherID <= 0 {
		return nil, &ValidationError{Field: "teacher_id", Reason: "is required"}
	}

	periods, err := s.store.ListPeriods(ctx, term, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list teacher periods: %w", err)
	}

	out := make([]model.Period, 0, len(periods))
	for _, p := range periods {
		p.Normalize()
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b model.Period) int {
		return cmp.Compare(a.PeriodNumber, b.PeriodNumber)
	})
	return out, nil
}

// GetClassTimetable rebuilds a class's weekly grid from every teacher's rows,
// one slot per row, ordered by period number. Concurrent misses for one class
// share a single build; each caller still returns as soon as its own ctx ends.
func (s *TimetableService) GetClassTimetable(ctx context.Context, term, className string) ([]model.ClassSlot, error) {
	term, className, err := classViewArgs(term, className)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		slots, ok, err := s.cache.Get(ctx, term, className)
		if err != nil {
			s.log.Warn().Err(err).Str("term", term).Str("class", className).Msg("Class view cache read failed")
		} else if ok {
			return slots, nil
		}
	}

	key := config.CacheKey.ClassViewKey(term, className)
	ch := s.views.DoChan(key, func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), classViewBuildTimeout)
		defer cancel()
		return s.loadClassView(buildCtx, term, className)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.ClassSlot), nil
	}
}

// RefreshClassView rebuilds a class grid straight from storage and caches
// it, never joining a build that may have started before the latest write.
func (s *TimetableService) RefreshClassView(ctx context.Context, term, className string) ([]model.ClassSlot, error) {
	term, className, err := classViewArgs(term, className)
	if err != nil {
		return nil, err
	}
	return s.loadClassView(ctx, term, className)
}

func classViewArgs(term, className string) (string, string, error) {
	term = strings.TrimSpace(term)
	className = strings.TrimSpace(className)
	if term == "" {
		return "", "", &ValidationError{Field: "term", Reason: "is required"}
	}
	if className == "" {
		return "", "", &ValidationError{Field: "class_name", Reason: "is required"}
	}
	return term, className, nil
}

// loadClassView builds the grid and caches it under the generation read
// before the rows. A write committing mid-build bumps the generation, so the
// older grid is dropped instead of outliving the invalidation.
func (s *TimetableService) loadClassView(ctx context.Context, term, className string) ([]model.ClassSlot, error) {
	var (
		gen       int64
		cacheable = s.cache != nil
	)
	if cacheable {
		var err error
		if gen, err = s.cache.Generation(ctx, term, className); err != nil {
			s.log.Warn().Err(err).Str("term", term).Str("class", className).Msg("Class view generation read failed")
			cacheable = false
		}
	}

	slots, err := s.buildClassView(ctx, term, className)
	if err != nil {
		return nil, err
	}

	if cacheable {
		stored, err := s.cache.SetIfGeneration(ctx, term, className, gen, slots)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("term", term).Str("class", className).Msg("Class view cache write failed")
		case !stored:
			s.log.Debug().Str("term", term).Str("class", className).Msg("Class changed during build, grid not cached")
		}
	}
	return slots, nil
}

// ListClasses returns the classes that have at least one period in term.
func (s *TimetableService) ListClasses(ctx context.Context, term string) ([]string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, &ValidationError{Field: "term", Reason: "is required"}
	}

	classes, err := s.store.ListClasses(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	if classes == nil {
		classes = []string{}
	}
	return classes, nil
}

func (s *TimetableService) buildClassView(ctx context.Context, term, className string) ([]model.ClassSlot, error) {
	periods, err := s.store.ListPeriodsByClass(ctx, term, className)
	if err != nil {
		return nil, fmt.Errorf("list class periods: %w", err)
	}

	ids := make([]int, 0, len(periods))
	for _, p := range periods {
		if !slices.Contains(ids, p.TeacherID) {
			ids = append(ids, p.TeacherID)
		}
	}

	names := map[int]string{}
	if len(ids) > 0 {
		names, err = s.store.ResolveTeacherNames(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve teacher names: %w", err)
		}
	}

	slots := make([]model.ClassSlot, 0, len(periods))
	for _, p := range periods {
		p.Normalize()
		name := names[p.TeacherID]
		slots = append(slots, model.ClassSlot{
			PeriodNumber: p.PeriodNumber,
			ClassName:    p.ClassName,
			TeacherID:    p.TeacherID,
			TeacherName:  name,
			WeekdayAssignments: p.WeekdayAssignments.Map(func(assignment string) string {
				return FormatCell(name, assignment)
			}),
			StartDay: p.StartDay,
			EndDay:   p.EndDay,
		})
	}

	slices.SortStableFunc(slots, func(a, b model.ClassSlot) int {
		return cmp.Or(
			cmp.Compare(a.PeriodNumber, b.PeriodNumber),
			cmp.Compare(a.StartDay, b.StartDay),
			cmp.Compare(a.TeacherID, b.TeacherID),
		)
	})
	return slots, nil
}

// FormatCell renders one class view cell.
func FormatCell(teacherName, assignment string) string {
	if assignment == "" {
		return ""
	}
	return teacherName + cellSeparator + assignment
}

// lockKeys lists the advisory keys a replacement must hold: the teacher's own
// key plus one per claimed class slot, sorted and deduplicated so concurrent
// writers always acquire in the same order.
func lockKeys(term string, teacherID int, candidates []model.Period) []string {
	keys := make([]string, 0, len(candidates)+1)
	keys = append(keys, config.CacheKey.TeacherLockKey(term, teacherID))
	for _, c := range candidates {
		keys = append(keys, config.CacheKey.SlotLockKey(term, c.ClassName, c.PeriodNumber))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

func touchedClasses(sets ...[]model.Period) []string {
	var classes []string
	for _, set := range sets {
		for _, p := range set {
			if p.ClassName != "" && !slices.Contains(classes, p.ClassName) {
				classes = append(classes, p.ClassName)
			}
		}
	}
	slices.Sort(classes)
	return classes
}

// AfterTeacherRemoved refreshes the class views a deleted teacher's rows
// appeared in.
func (s *TimetableService) AfterTeacherRemoved(ctx context.Context, teacherID int, removed []model.Period) {
	byTerm := map[string][]model.Period{}
	for _, p := range removed {
		byTerm[p.Term] = append(byTerm[p.Term], p)
	}
	for term, periods := range byTerm {
		s.afterCommit(ctx, term, teacherID, touchedClasses(periods))
	}
}
