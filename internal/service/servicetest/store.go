// Package servicetest provides an in-memory storage implementation for tests
// of the service and handler layers.
package servicetest

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/exstem-timetable/internal/model"
	"github.com/stemsi/exstem-timetable/internal/service"
)

type periodKey struct {
	term         string
	teacherID    int
	periodNumber int
}

// MemoryStore keeps teachers, admins and timetable rows in maps. Transactions
// are serialized and work on a copy that replaces the committed rows only
// when the callback succeeds.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	periods  map[periodKey]model.Period
	teachers map[int]model.Teacher
	admins   map[string]model.Admin
	nextID   int
	locks    [][]string

	// ReplaceErr, when set, is returned by every ReplaceAll.
	ReplaceErr error
	// ReadErr, when set, is returned by every read outside a transaction.
	ReadErr error
}

var (
	_ service.TimetableStore    = (*MemoryStore)(nil)
	_ service.TeacherRepository = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		periods:  map[periodKey]model.Period{},
		teachers: map[int]model.Teacher{},
		admins:   map[string]model.Admin{},
	}
}

// AddTeacher stores a teacher without a password and returns it with its id.
func (s *MemoryStore) AddTeacher(term, username, name string) model.Teacher {
	t := model.Teacher{Term: term, Username: username, Name: name}
	if err := s.Create(context.Background(), &t); err != nil {
		panic(err)
	}
	return t
}

// Seed writes rows directly, bypassing every check.
func (s *MemoryStore) Seed(periods ...model.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range periods {
		s.periods[keyOf(p)] = p
	}
}

// Periods returns every committed row ordered by term, teacher and period.
func (s *MemoryStore) Periods() []model.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Period, 0, len(s.periods))
	for _, p := range s.periods {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Period) int {
		return cmp.Or(
			cmp.Compare(a.Term, b.Term),
			cmp.Compare(a.TeacherID, b.TeacherID),
			cmp.Compare(a.PeriodNumber, b.PeriodNumber),
		)
	})
	return out
}

// LockCalls returns the key sets passed to LockKeys, in call order.
func (s *MemoryStore) LockCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.locks)
}

// ─── service.TimetableStore ────────────────────────────────────────────

func (s *MemoryStore) ListPeriods(_ context.Context, term string, teacherID int) ([]model.Period, error) {
	rows, err := s.committed()
	if err != nil {
		return nil, err
	}
	return listPeriods(rows, term, teacherID), nil
}

func (s *MemoryStore) ListPeriodsByClassAndNumber(_ context.Context, term, className string, periodNumber, excludeTeacherID int) ([]model.Period, error) {
	rows, err := s.committed()
	if err != nil {
		return nil, err
	}
	return listPeriodsByClassAndNumber(rows, term, className, periodNumber, excludeTeacherID), nil
}

func (s *MemoryStore) ListPeriodsByClass(_ context.Context, term, className string) ([]model.Period, error) {
	rows, err := s.committed()
	if err != nil {
		return nil, err
	}
	return listPeriodsByClass(rows, term, className), nil
}

func (s *MemoryStore) ListClasses(_ context.Context, term string) ([]string, error) {
	rows, err := s.committed()
	if err != nil {
		return nil, err
	}
	var classes []string
	for _, p := range rows {
		if p.Term == term && !slices.Contains(classes, p.ClassName) {
			classes = append(classes, p.ClassName)
		}
	}
	slices.Sort(classes)
	return classes, nil
}

func (s *MemoryStore) ResolveTeacherNames(_ context.Context, ids []int) (map[int]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	names := make(map[int]string, len(ids))
	for _, id := range ids {
		if t, ok := s.teachers[id]; ok {
			names[id] = t.Name
		}
	}
	return names, nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx service.TimetableTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := &memoryTx{store: s, periods: cloneRows(s.periods)}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.periods = tx.periods
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) committed() (map[periodKey]model.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	return cloneRows(s.periods), nil
}

type memoryTx struct {
	store   *MemoryStore
	periods map[periodKey]model.Period
}

func (t *memoryTx) ListPeriods(_ context.Context, term string, teacherID int) ([]model.Period, error) {
	return listPeriods(t.periods, term, teacherID), nil
}

func (t *memoryTx) ListPeriodsByClassAndNumber(_ context.Context, term, className string, periodNumber, excludeTeacherID int) ([]model.Period, error) {
	return listPeriodsByClassAndNumber(t.periods, term, className, periodNumber, excludeTeacherID), nil
}

func (t *memoryTx) ListPeriodsByClass(_ context.Context, term, className string) ([]model.Period, error) {
	return listPeriodsByClass(t.periods, term, className), nil
}

func (t *memoryTx) TeacherTerm(_ context.Context, teacherID int) (string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	teacher, ok := t.store.teachers[teacherID]
	if !ok {
		return "", service.ErrTeacherNotFound
	}
	return teacher.Term, nil
}

func (t *memoryTx) LockKeys(_ context.Context, keys []string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.locks = append(t.store.locks, slices.Clone(keys))
	return nil
}

func (t *memoryTx) ReplaceAll(_ context.Context, term string, teacherID int, periods []model.Period) error {
	t.store.mu.Lock()
	_, known := t.store.teachers[teacherID]
	replaceErr := t.store.ReplaceErr
	t.store.mu.Unlock()

	if replaceErr != nil {
		return replaceErr
	}
	if !known && len(periods) > 0 {
		return &pgconn.PgError{Code: "23503", Message: "timetable_periods_teacher_id_fkey"}
	}

	for k := range t.periods {
		if k.term == term && k.teacherID == teacherID {
			delete(t.periods, k)
		}
	}
	for _, p := range periods {
		k := keyOf(p)
		if _, dup := t.periods[k]; dup {
			return &pgconn.PgError{Code: "23505", Message: "timetable_periods_term_teacher_id_period_number_key"}
		}
		t.periods[k] = p
	}
	return nil
}

// ─── service.TeacherRepository ─────────────────────────────────────────

func (s *MemoryStore) Create(_ context.Context, t *model.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.teachers {
		if existing.Term == t.Term && existing.Username == t.Username {
			return &pgconn.PgError{Code: "23505", Message: "teachers_term_username_key"}
		}
	}
	s.nextID++
	now := time.Now().UTC()
	t.ID, t.CreatedAt, t.UpdatedAt = s.nextID, now, now
	s.teachers[t.ID] = *t
	return nil
}

func (s *MemoryStore) ListByTerm(_ context.Context, term string) ([]model.Teacher, error) {
	return s.listTeachers(func(t model.Teacher) bool { return t.Term == term },
		func(a, b model.Teacher) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
		})
}

func (s *MemoryStore) ListByUsername(_ context.Context, username string) ([]model.Teacher, error) {
	return s.listTeachers(func(t model.Teacher) bool { return t.Username == username },
		func(a, b model.Teacher) int { return cmp.Compare(b.ID, a.ID) })
}

func (s *MemoryStore) Delete(_ context.Context, id int) ([]model.Period, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teachers[id]; !ok {
		return nil, service.ErrTeacherNotFound
	}
	var removed []model.Period
	for k, p := range s.periods {
		if k.teacherID == id {
			removed = append(removed, p)
			delete(s.periods, k)
		}
	}
	delete(s.teachers, id)
	sortByPeriod(removed)
	return removed, nil
}

func (s *MemoryStore) listTeachers(keep func(model.Teacher) bool, order func(a, b model.Teacher) int) ([]model.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	var out []model.Teacher
	for _, t := range s.teachers {
		if keep(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, order)
	return out, nil
}

// ─── service.AdminRepository ───────────────────────────────────────────

// AdminStore is the admin side of a MemoryStore. It is a separate type since
// both repositories name their insert Create.
type AdminStore struct {
	s *MemoryStore
}

var _ service.AdminRepository = (*AdminStore)(nil)

// Admins returns the AdminRepository view of the store.
func (s *MemoryStore) Admins() *AdminStore {
	return &AdminStore{s: s}
}

// GetByUsername returns pgx.ErrNoRows for unknown admins, like the pgx
// repository does.
func (a *AdminStore) GetByUsername(_ context.Context, username string) (*model.Admin, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	admin, ok := a.s.admins[username]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &admin, nil
}

func (a *AdminStore) Create(_ context.Context, admin *model.Admin) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, dup := a.s.admins[admin.Username]; dup {
		return &pgconn.PgError{Code: "23505", Message: "admins_username_key"}
	}
	a.s.nextID++
	now := time.Now().UTC()
	admin.ID, admin.CreatedAt, admin.UpdatedAt = a.s.nextID, now, now
	a.s.admins[admin.Username] = *admin
	return nil
}

// ─── helpers ───────────────────────────────────────────────────────────

func keyOf(p model.Period) periodKey {
	return periodKey{term: p.Term, teacherID: p.TeacherID, periodNumber: p.PeriodNumber}
}

func cloneRows(rows map[periodKey]model.Period) map[periodKey]model.Period {
	out := make(map[periodKey]model.Period, len(rows))
	for k, v := range rows {
		out[k] = v
	}
	return out
}

func filter(rows map[periodKey]model.Period, keep func(model.Period) bool) []model.Period {
	var out []model.Period
	for _, p := range rows {
		if keep(p) {
			out = append(out, p)
		}
	}
	sortByPeriod(out)
	return out
}

func sortByPeriod(rows []model.Period) {
	slices.SortFunc(rows, func(a, b model.Period) int {
		return cmp.Or(
			cmp.Compare(a.PeriodNumber, b.PeriodNumber),
			cmp.Compare(a.StartDay, b.StartDay),
			cmp.Compare(a.TeacherID, b.TeacherID),
		)
	})
}

func listPeriods(rows map[periodKey]model.Period, term string, teacherID int) []model.Period {
	return filter(rows, func(p model.Period) bool {
		return p.Term == term && p.TeacherID == teacherID
	})
}

func listPeriodsByClassAndNumber(rows map[periodKey]model.Period, term, className string, periodNumber, excludeTeacherID int) []model.Period {
	return filter(rows, func(p model.Period) bool {
		return p.Term == term && p.ClassName == className && p.PeriodNumber == periodNumber && p.TeacherID != excludeTeacherID
	})
}

func listPeriodsByClass(rows map[periodKey]model.Period, term, className string) []model.Period {
	return filter(rows, func(p model.Period) bool {
		return p.Term == term && p.ClassName == className
	})
}
