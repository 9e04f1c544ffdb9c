package model

import "time"

// Teacher is a staff member scoped to one term. Timetable rows reference it.
type Teacher struct {
	ID           int       `json:"id"`
	Term         string    `json:"term"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateTeacherRequest is the payload for adding a teacher to a term.
type CreateTeacherRequest struct {
	Term     string `json:"term" binding:"required,max=50"`
	Username string `json:"username" binding:"required,min=3,max=100"`
	Name     string `json:"name" binding:"required,min=2,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}
