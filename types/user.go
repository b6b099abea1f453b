package types

import "time"

// User represents an account in the system.
// It contains identity, role, and profile metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Login is the unique login name chosen by the user.
	Login string `json:"login" db:"login"`

	// Fullname is the user's display name.
	Fullname string `json:"fullname" db:"fullname"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// IsAdmin grants access to the user directory and to every user's files.
	IsAdmin bool `json:"is_admin" db:"is_admin"`

	// Avatar is the url of one of the user's files, or empty.
	Avatar string `json:"avatar" db:"avatar"`

	// Files is only populated in the admin user listing.
	Files []File `json:"files,omitempty" db:"-"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"-" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// UserUpdate is a partial user change. Nil fields are left untouched.
// ID selects the target user; only admins may target someone else.
type UserUpdate struct {
	ID       *int    `json:"id,omitempty"`
	Login    *string `json:"login,omitempty"`
	Fullname *string `json:"fullname,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
}

// Empty reports whether the update carries no field besides ID.
func (u UserUpdate) Empty() bool {
	return u.Login == nil && u.Fullname == nil && u.Email == nil &&
		u.Password == nil && u.Avatar == nil && u.IsAdmin == nil
}

// Apply copies the set fields onto user. Password is not applied.
func (u UserUpdate) Apply(user User) User {
	if u.Login != nil {
		user.Login = *u.Login
	}
	if u.Fullname != nil {
		user.Fullname = *u.Fullname
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Avatar != nil {
		user.Avatar = *u.Avatar
	}
	if u.IsAdmin != nil {
		user.IsAdmin = *u.IsAdmin
	}
	return user
}

// Credentials is the login request payload.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Registration is the register request payload.
type Registration struct {
	Login    string `json:"login"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Tokens is the bearer token pair handed out on login and registration.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AuthResponse is returned by the login, register and check-auth endpoints.
type AuthResponse struct {
	Message string  `json:"message,omitempty"`
	User    User    `json:"user"`
	Tokens  *Tokens `json:"tokens,omitempty"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	User User `json:"user"`
}

// UserListResponse is the admin user listing.
type UserListResponse struct {
	Users []User `json:"users"`
}
