// Package validate holds the account field format rules shared by the client
// and the backend.
package validate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mycloud-app/mycloud/types"
)

const (
	FieldLogin    = "login"
	FieldFullname = "fullname"
	FieldEmail    = "email"
	FieldPassword = "password"
)

const (
	LoginMessage    = "Login must contain only Latin letters and digits, start with a letter and be 4 to 20 characters long"
	EmailMessage    = "Email must be a valid email address"
	PasswordMessage = "Password must be at least 6 characters long and contain an uppercase letter, a digit and one of !@#$%^&*"
	FullnameMessage = "Enter a valid value"
)

const passwordSpecials = "!@#$%^&*"

var (
	loginPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]{3,19}$`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ValidationError maps each offending field to its display message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Message returns the message for field, or "".
func (e *ValidationError) Message(field string) string {
	if e == nil {
		return ""
	}
	return e.Fields[field]
}

// Login reports whether login matches the login pattern.
func Login(login string) bool {
	return loginPattern.MatchString(login)
}

// Email reports whether email looks like an email address.
func Email(email string) bool {
	return emailPattern.MatchString(email)
}

// Password reports whether password is at least six characters drawn from
// letters, digits and the special set, with at least one uppercase letter,
// one digit and one special character.
func Password(password string) bool {
	if len(password) < 6 {
		return false
	}
	var upper, digit, special bool
	for _, c := range password {
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, c):
			special = true
		default:
			return false
		}
	}
	return upper && digit && special
}

// Fullname reports whether name is non-empty after trimming.
func Fullname(name string) bool {
	return strings.TrimSpace(name) != ""
}

type checker struct {
	fields map[string]string
}

func (c *checker) check(ok bool, field, message string) {
	if ok {
		return
	}
	if c.fields == nil {
		c.fields = make(map[string]string)
	}
	c.fields[field] = message
}

func (c *checker) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.fields}
}

// Registration checks every registration field. The login is checked as
// entered: surrounding whitespace makes it invalid.
func Registration(r types.Registration) error {
	var c checker
	c.check(Login(r.Login), FieldLogin, LoginMessage)
	c.check(Fullname(r.Fullname), FieldFullname, FullnameMessage)
	c.check(Email(strings.TrimSpace(r.Email)), FieldEmail, EmailMessage)
	c.check(Password(r.Password), FieldPassword, PasswordMessage)
	return c.err()
}

// Update checks only the fields present in u. Avatar and is_admin carry no
// format rules.
func Update(u types.UserUpdate) error {
	var c checker
	if u.Login != nil {
		c.check(Login(*u.Login), FieldLogin, LoginMessage)
	}
	if u.Fullname != nil {
		c.check(Fullname(*u.Fullname), FieldFullname, FullnameMessage)
	}
	if u.Email != nil {
		c.check(Email(strings.TrimSpace(*u.Email)), FieldEmail, EmailMessage)
	}
	if u.Password != nil {
		c.check(Password(*u.Password), FieldPassword, PasswordMessage)
	}
	return c.err()
}
