package service

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-timetable/internal/model"
)

// Overlaps reports whether the closed day windows [s1,e1] and [s2,e2] share
// at least one day.
func Overlaps(s1, e1, s2, e2 int) bool {
	return !(e1 < s2 || s1 > e2)
}

// DetectConflict checks one candidate period against the persisted periods of
// other teachers holding the same class and period number. It returns the
// first overlapping row as a *ConflictError, or nil when the slot is free.
// Candidates without a class never conflict.
func DetectConflict(ctx context.Context, r PeriodReader, candidate model.Period, excludeTeacherID int) (*ConflictError, error) {
	if candidate.ClassName == "" {
		return nil, nil
	}

	existing, err := r.ListPeriodsByClassAndNumber(ctx, candidate.Term, candidate.ClassName, candidate.PeriodNumber, excludeTeacherID)
	if err != nil {
		return nil, fmt.Errorf("list class slot: %w", err)
	}

	for _, other := range existing {
		other.Normalize()
		if Overlaps(candidate.StartDay, candidate.EndDay, other.StartDay, other.EndDay) {
			return &ConflictError{
				ClassName:      candidate.ClassName,
				PeriodNumber:   candidate.PeriodNumber,
				StartDay:       candidate.StartDay,
				EndDay:         candidate.EndDay,
				OtherTeacherID: other.TeacherID,
				OtherStartDay:  other.StartDay,
				OtherEndDay:    other.EndDay,
			}, nil
		}
	}
	return nil, nil
}
