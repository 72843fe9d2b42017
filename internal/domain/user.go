package domain

import "time"

// UserType classifies a platform account.
type UserType string

const (
	UserTypeProfessional UserType = "Professional"
	UserTypeEmployer     UserType = "Employer"
	UserTypeSuperAdmin   UserType = "SuperAdmin"
)

// ParseUserType validates a wire value against the closed enumeration.
func ParseUserType(value string) (UserType, bool) {
	switch UserType(value) {
	case UserTypeProfessional, UserTypeEmployer, UserTypeSuperAdmin:
		return UserType(value), true
	}
	return "", false
}

// User represents a platform account. PasswordHash never leaves the process;
// handlers serialize users through PublicUser.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	FirstName       string
	LastName        string
	Phone           string
	UserType        UserType
	IsActive        bool
	IsEmailVerified bool
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FullName joins first and last name.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// IsAdmin reports whether the account is a platform administrator.
func (u User) IsAdmin() bool {
	return u.UserType == UserTypeSuperAdmin
}

// PublicUser is the outward-facing projection of a User.
type PublicUser struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Phone           string     `json:"phone,omitempty"`
	UserType        UserType   `json:"user_type"`
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_email_verified"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Public strips credentials from a User.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Phone:           u.Phone,
		UserType:        u.UserType,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}
