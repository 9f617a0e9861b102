package models

import "time"

// User represents an account holder in the system
// Password is stored hashed (bcrypt); never return plain in JSON responses
type User struct {
	ID            int       `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	EmailVerified bool      `json:"email_verified" db:"email_verified"`
	Image         string    `json:"image" db:"image"`
	Role          string    `json:"role" db:"role"`
	Password      string    `json:"-" db:"password"` // Hashed; omitted from JSON
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is the subset of a profile visible to other users.
type PublicUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// SignupRequest creates a new account. Password is plaintext here and hashed
// in the handler before it touches the database.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest for POST /api/auth/login (cookie session)
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest updates the caller's own record. Both fields optional.
type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Image *string `json:"image,omitempty" validate:"omitempty,max=500"`
}

// ChangePasswordRequest rotates the caller's password and revokes their
// other sessions.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// ForgotPasswordRequest kicks off the reset-email flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the reset-email flow.
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// VerifyEmailRequest confirms ownership of the signup email address.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}
