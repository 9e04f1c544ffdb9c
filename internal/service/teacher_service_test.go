package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-timetable/internal/config"
	"github.com/stemsi/exstem-timetable/internal/model"
	"github.com/stemsi/exstem-timetable/internal/service"
	"github.com/stemsi/exstem-timetable/internal/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
}

type teacherFixture struct {
	teachers  *service.TeacherService
	timetable *service.TimetableService
	auth      *service.AuthService
	store     *servicetest.MemoryStore
	cache     *servicetest.MemoryCache
}

func newTeacherFixture(t *testing.T) *teacherFixture {
	t.Helper()
	store := servicetest.NewMemoryStore()
	cache := servicetest.NewMemoryCache()
	auth := service.NewAuthService(testConfig(), store.Admins(), store)
	timetable := service.NewTimetableService(store, cache, cache, zerolog.Nop())
	return &teacherFixture{
		teachers:  service.NewTeacherService(store, auth, timetable, zerolog.Nop()),
		timetable: timetable,
		auth:      auth,
		store:     store,
		cache:     cache,
	}
}

func TestTeacherServiceCreate(t *testing.T) {
	ctx := context.Background()
	f := newTeacherFixture(t)

	teacher, err := f.teachers.Create(ctx, &model.CreateTeacherRequest{
		Term:     " 2024-25 ",
		Username: "rao",
		Name:     " Ms. Rao ",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotZero(t, teacher.ID)
	assert.Equal(t, "2024-25", teacher.Term)
	assert.Equal(t, "Ms. Rao", teacher.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(teacher.PasswordHash), []byte("secret123")))

	_, err = f.teachers.Create(ctx, &model.CreateTeacherRequest{
		Term: "2024-25", Username: "rao", Name: "Other", Password: "secret123",
	})
	assert.ErrorIs(t, err, service.ErrUsernameTaken)

	_, err = f.teachers.Create(ctx, &model.CreateTeacherRequest{
		Term: "2025-26", Username: "rao", Name: "Ms. Rao", Password: "secret123",
	})
	assert.NoError(t, err, "usernames are unique per term only")
}

func TestTeacherServiceListByTerm(t *testing.T) {
	ctx := context.Background()
	f := newTeacherFixture(t)
	f.store.AddTeacher(term, "z", "Zed")
	f.store.AddTeacher(term, "a", "Amy")
	f.store.AddTeacher("other", "b", "Bob")

	teachers, err := f.teachers.ListByTerm(ctx, term)
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, "Amy", teachers[0].Name)
	assert.Equal(t, "Zed", teachers[1].Name)

	none, err := f.teachers.ListByTerm(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, none)

	_, err = f.teachers.ListByTerm(ctx, "")
	var verr *service.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTeacherServiceDeleteCascades(t *testing.T) {
	ctx := context.Background()
	f := newTeacherFixture(t)
	a := f.store.AddTeacher(term, "a", "A")
	b := f.store.AddTeacher(term, "b", "B")

	require.NoError(t, f.timetable.ReplaceTimetable(ctx, term, a.ID, []model.PeriodInput{entry("5A", "Math", 1, 5), entry("5B", "Math")}))
	require.NoError(t, f.timetable.ReplaceTimetable(ctx, term, b.ID, []model.PeriodInput{entry("6C", "Art")}))
	_, err := f.timetable.GetClassTimetable(ctx, term, "5A")
	require.NoError(t, err)
	f.cache.Published = nil

	removed, err := f.teachers.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, p := range f.store.Periods() {
		assert.Equal(t, b.ID, p.TeacherID, "no orphaned rows remain")
	}
	assert.False(t, f.cache.Cached(term, "5A"))
	require.Len(t, f.cache.Published, 2)
	assert.Equal(t, "5A", f.cache.Published[0].ClassName)
	assert.Equal(t, "5B", f.cache.Published[1].ClassName)

	// The freed slot can now be claimed by someone else.
	require.NoError(t, f.timetable.ReplaceTimetable(ctx, term, b.ID, []model.PeriodInput{entry("5A", "Art", 2, 3)}))

	_, err = f.teachers.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, service.ErrTeacherNotFound)
}
