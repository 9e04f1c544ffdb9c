package service

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	ErrTeacherNotFound    = errors.New("teacher not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already registered for this term")
)

// ValidationError reports missing or malformed input. It is raised before any
// storage access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when a submitted period would double-book a class
// slot already held by another teacher on overlapping days.
type ConflictError struct {
	ClassName      string
	PeriodNumber   int
	StartDay       int
	EndDay         int
	OtherTeacherID int
	OtherStartDay  int
	OtherEndDay    int
}

// OverlapStart is the first day both windows cover.
func (e *ConflictError) OverlapStart() int { return max(e.StartDay, e.OtherStartDay) }

// OverlapEnd is the last day both windows cover.
func (e *ConflictError) OverlapEnd() int { return min(e.EndDay, e.OtherEndDay) }

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Conflict detected for class %s, period %d, days %d-%d",
		e.ClassName, e.PeriodNumber, e.OverlapStart(), e.OverlapEnd())
}

// Fields renders the conflict as flat key/value detail for API responses.
func (e *ConflictError) Fields() map[string]string {
	return map[string]string{
		"class":            e.ClassName,
		"period":           fmt.Sprint(e.PeriodNumber),
		"overlap":          fmt.Sprintf("%d-%d", e.OverlapStart(), e.OverlapEnd()),
		"requested_days":   fmt.Sprintf("%d-%d", e.StartDay, e.EndDay),
		"existing_days":    fmt.Sprintf("%d-%d", e.OtherStartDay, e.OtherEndDay),
		"other_teacher_id": fmt.Sprint(e.OtherTeacherID),
	}
}
