package model

import "time"

// Admin is a back-office user allowed to manage every teacher's timetable.
type Admin struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LoginRequest is the payload shared by admin and teacher login.
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=128"`
}

// LoginResponse is returned after a successful login. Teacher is set only
// for teacher logins.
type LoginResponse struct {
	Token   string   `json:"token"`
	Role    string   `json:"role"`
	Admin   *Admin   `json:"admin,omitempty"`
	Teacher *Teacher `json:"teacher,omitempty"`
}
