package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stemsi/exstem-timetable/internal/model"
	"github.com/stemsi/exstem-timetable/internal/service"
	"github.com/stemsi/exstem-timetable/internal/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlapsMatchesIntervalIntersection(t *testing.T) {
	const maxDay = 6
	for s1 := 1; s1 <= maxDay; s1++ {
		for e1 := s1; e1 <= maxDay; e1++ {
			for s2 := 1; s2 <= maxDay; s2++ {
				for e2 := s2; e2 <= maxDay; e2++ {
					want := max(s1, s2) <= min(e1, e2)
					assert.Equal(t, want, service.Overlaps(s1, e1, s2, e2),
						"[%d,%d] vs [%d,%d]", s1, e1, s2, e2)
					assert.Equal(t, service.Overlaps(s1, e1, s2, e2), service.Overlaps(s2, e2, s1, e1),
						"symmetry [%d,%d] vs [%d,%d]", s1, e1, s2, e2)
				}
			}
		}
	}
}

func TestOverlapsTouchingBounds(t *testing.T) {
	assert.True(t, service.Overlaps(1, 5, 5, 9), "shared end day")
	assert.False(t, service.Overlaps(1, 5, 6, 9), "adjacent windows")
	assert.True(t, service.Overlaps(3, 3, 1, 10), "single day inside")
}

func slot(term string, teacherID, period int, class string, start, end int) model.Period {
	return model.Period{
		Term:               term,
		TeacherID:          teacherID,
		PeriodNumber:       period,
		ClassName:          class,
		WeekdayAssignments: model.WeekdayAssignments{Monday: "Math"},
		StartDay:           start,
		EndDay:             end,
	}
}

func TestDetectConflict(t *testing.T) {
	ctx := context.Background()
	store := servicetest.NewMemoryStore()
	store.Seed(
		slot("t1", 1, 2, "5A", 1, 5),
		slot("t1", 3, 2, "5B", 1, 5),
		slot("t2", 4, 2, "5A", 1, 5),
	)

	tests := []struct {
		name      string
		candidate model.Period
		exclude   int
		wantOther int
	}{
		{"overlapping window of another teacher", slot("t1", 2, 2, "5A", 3, 4), 2, 1},
		{"disjoint window", slot("t1", 2, 2, "5A", 6, 7), 2, 0},
		{"other period number", slot("t1", 2, 3, "5A", 1, 5), 2, 0},
		{"other class", slot("t1", 2, 2, "5C", 1, 5), 2, 0},
		{"other term", slot("t3", 2, 2, "5A", 1, 5), 2, 0},
		{"own rows excluded", slot("t1", 1, 2, "5A", 1, 5), 1, 0},
		{"empty class never conflicts", slot("t1", 2, 2, "", 1, 5), 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflict, err := service.DetectConflict(ctx, store, tt.candidate, tt.exclude)
			require.NoError(t, err)
			if tt.wantOther == 0 {
				assert.Nil(t, conflict)
				return
			}
			require.NotNil(t, conflict)
			assert.Equal(t, tt.wantOther, conflict.OtherTeacherID)
		})
	}
}

func TestDetectConflictDetail(t *testing.T) {
	store := servicetest.NewMemoryStore()
	store.Seed(slot("t1", 1, 1, "5A", 1, 5))

	conflict, err := service.DetectConflict(context.Background(), store, slot("t1", 2, 1, "5A", 3, 8), 2)
	require.NoError(t, err)
	require.NotNil(t, conflict)

	assert.Equal(t, "5A", conflict.ClassName)
	assert.Equal(t, 1, conflict.PeriodNumber)
	assert.Equal(t, 3, conflict.OverlapStart())
	assert.Equal(t, 5, conflict.OverlapEnd())
	assert.Equal(t, "Conflict detected for class 5A, period 1, days 3-5", conflict.Error())
	assert.Equal(t, map[string]string{
		"class":            "5A",
		"period":           "1",
		"overlap":          "3-5",
		"requested_days":   "3-8",
		"existing_days":    "1-5",
		"other_teacher_id": "1",
	}, conflict.Fields())
}

func TestDetectConflictNormalizesStoredWindow(t *testing.T) {
	store := servicetest.NewMemoryStore()
	store.Seed(slot("t1", 1, 1, "5A", 0, 0))

	conflict, err := service.DetectConflict(context.Background(), store, slot("t1", 2, 1, "5A", 1, 1), 2)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, 1, conflict.OtherStartDay)
	assert.Equal(t, 1, conflict.OtherEndDay)
}

func TestDetectConflictStorageError(t *testing.T) {
	store := servicetest.NewMemoryStore()
	boom := errors.New("connection reset")
	store.ReadErr = boom

	conflict, err := service.DetectConflict(context.Background(), store, slot("t1", 2, 1, "5A", 1, 1), 2)
	assert.Nil(t, conflict)
	assert.ErrorIs(t, err, boom)
}
