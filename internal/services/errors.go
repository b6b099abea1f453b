package services

import "errors"

var (
	// ErrForbidden is returned when the acting user may not touch the target.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned by Authenticate.
	ErrInvalidCredentials = errors.New("Invalid credentials")
	// ErrLoginTaken and ErrEmailTaken report unique field clashes.
	ErrLoginTaken = errors.New("User with this login already exists")
	ErrEmailTaken = errors.New("User with this email already exists")
	// ErrNoChanges is returned by updates that carry no valid field.
	ErrNoChanges = errors.New("No valid fields to update")
	// ErrSelfDelete is returned when an admin tries to delete their own account.
	ErrSelfDelete = errors.New("You cannot delete yourself")
	// ErrSelfDemote is returned when an admin tries to drop their own admin flag.
	ErrSelfDemote = errors.New("You cannot remove your own admin rights")
)
