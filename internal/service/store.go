package service

import (
	"context"

	"github.com/stemsi/exstem-timetable/internal/model"
)

// PeriodReader is the read side of the timetable storage.
type PeriodReader interface {
	// ListPeriods returns a teacher's periods ordered by period number.
	ListPeriods(ctx context.Context, term string, teacherID int) ([]model.Period, error)
	// ListPeriodsByClassAndNumber returns the periods holding one class slot,
	// skipping rows owned by excludeTeacherID.
	ListPeriodsByClassAndNumber(ctx context.Context, term, className string, periodNumber, excludeTeacherID int) ([]model.Period, error)
	// ListPeriodsByClass returns every period taught to a class ordered by
	// period number.
	ListPeriodsByClass(ctx context.Context, term, className string) ([]model.Period, error)
}

// TimetableTx is a transaction-scoped view of the storage. Everything done
// through it commits or rolls back together.
type TimetableTx interface {
	PeriodReader
	// TeacherTerm returns the term the teacher belongs to and keeps the
	// teacher row from being deleted until the transaction ends. Unknown ids
	// give ErrTeacherNotFound.
	TeacherTerm(ctx context.Context, teacherID int) (string, error)
	// LockKeys blocks until the caller holds every key until the transaction
	// ends. Keys must be passed in a stable order.
	LockKeys(ctx context.Context, keys []string) error
	// ReplaceAll deletes the teacher's rows in term and inserts periods.
	ReplaceAll(ctx context.Context, term string, teacherID int, periods []model.Period) error
}

// TimetableStore is the storage the timetable engine depends on.
type TimetableStore interface {
	PeriodReader
	// ResolveTeacherNames maps teacher ids to display names. Unknown ids are
	// absent from the result.
	ResolveTeacherNames(ctx context.Context, ids []int) (map[int]string, error)
	// ListClasses returns the distinct class names with at least one period
	// in term, sorted.
	ListClasses(ctx context.Context, term string) ([]string, error)
	// WithTx runs fn in one transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx TimetableTx) error) error
}
