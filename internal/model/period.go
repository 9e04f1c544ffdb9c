package model

// DefaultDay is the day ordinal used when a period omits its window bounds.
const DefaultDay = 1

// Weekdays lists the weekday keys in display order.
var Weekdays = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// WeekdayAssignments holds the per-weekday label of a period. An empty
// string means nothing is scheduled on that day.
type WeekdayAssignments struct {
	Monday    string `json:"monday" binding:"max=255"`
	Tuesday   string `json:"tuesday" binding:"max=255"`
	Wednesday string `json:"wednesday" binding:"max=255"`
	Thursday  string `json:"thursday" binding:"max=255"`
	Friday    string `json:"friday" binding:"max=255"`
	Saturday  string `json:"saturday" binding:"max=255"`
	Sunday    string `json:"sunday" binding:"max=255"`
}

// Days returns the assignments in Weekdays order.
func (w WeekdayAssignments) Days() [7]string {
	return [7]string{w.Monday, w.Tuesday, w.Wednesday, w.Thursday, w.Friday, w.Saturday, w.Sunday}
}

// Map applies fn to every weekday cell.
func (w WeekdayAssignments) Map(fn func(string) string) WeekdayAssignments {
	return WeekdayAssignments{
		Monday:    fn(w.Monday),
		Tuesday:   fn(w.Tuesday),
		Wednesday: fn(w.Wednesday),
		Thursday:  fn(w.Thursday),
		Friday:    fn(w.Friday),
		Saturday:  fn(w.Saturday),
		Sunday:    fn(w.Sunday),
	}
}

// Period is one weekly recurring slot of a teacher, valid on the inclusive
// day-ordinal window [StartDay, EndDay]. (Term, TeacherID, PeriodNumber) is
// its identity.
type Period struct {
	Term         string `json:"term"`
	TeacherID    int    `json:"teacher_id"`
	PeriodNumber int    `json:"period"`
	ClassName    string `json:"class"`
	WeekdayAssignments
	StartDay int `json:"start_day"`
	EndDay   int `json:"end_day"`
}

// Normalize replaces unset (zero) window bounds with DefaultDay.
func (p *Period) Normalize() {
	if p.StartDay == 0 {
		p.StartDay = DefaultDay
	}
	if p.EndDay == 0 {
		p.EndDay = DefaultDay
	}
}

// ClassSlot is one row of a class's weekly grid. Each weekday cell reads
// "<teacher> — <assignment>" or is empty.
type ClassSlot struct {
	PeriodNumber int    `json:"period"`
	ClassName    string `json:"class"`
	TeacherID    int    `json:"teacher_id"`
	TeacherName  string `json:"teacher_name"`
	WeekdayAssignments
	StartDay int `json:"start_day"`
	EndDay   int `json:"end_day"`
}

// PeriodInput is one submitted period; its position in the list decides its
// period number.
type PeriodInput struct {
	ClassName string `json:"class" binding:"max=100"`
	WeekdayAssignments
	StartDay *int `json:"start_day" binding:"omitempty,min=1"`
	EndDay   *int `json:"end_day" binding:"omitempty,min=1"`
}

// ReplaceTimetableRequest is the payload for replacing a teacher's timetable.
type ReplaceTimetableRequest struct {
	Term      string        `json:"term" binding:"required,max=50"`
	TeacherID int           `json:"teacher_id" binding:"required,min=1"`
	Periods   []PeriodInput `json:"periods" binding:"required,min=1,dive"`
}
