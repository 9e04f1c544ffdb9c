package model

import "time"

// ClassUpdate announces that a class's timetable changed after a commit.
type ClassUpdate struct {
	Term      string    `json:"term"`
	ClassName string    `json:"class"`
	TeacherID int       `json:"teacher_id"`
	At        time.Time `json:"at"`
}
