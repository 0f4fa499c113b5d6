package auth

import (
	"errors"
	"fmt"
	"time"

	"loomline/internal/config"
)

// ErrInvalidCredentials covers both unknown users and wrong passwords; the
// caller gets no hint which one it was.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ExpiredError indicates correct credentials whose access window has closed.
type ExpiredError struct {
	Username    string
	AccessUntil string
}

func (e ExpiredError) Error() string {
	return fmt.Sprintf("access for %s expired on %s", e.Username, e.AccessUntil)
}

// Result is a successful credential check.
type Result struct {
	Username string
	// AccessUntil is the end of the user's last valid day, nil when the
	// account never expires.
	AccessUntil *time.Time
}

// Service checks credentials against the config user list.
type Service struct {
	Users []config.User
	Now   func() time.Time
}

func New(cfg *config.Config) Service {
	return Service{Users: cfg.Auth.Users, Now: time.Now}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Authenticate returns a Result when the password matches and today is
// within the user's access window.
func (s Service) Authenticate(username, password string) (Result, error) {
	for _, u := range s.Users {
		if u.Username != username {
			continue
		}
		if u.Password != password {
			return Result{}, ErrInvalidCredentials
		}
		if u.AccessUntil == "" {
			return Result{Username: username}, nil
		}
		until, err := time.Parse("2006-01-02", u.AccessUntil)
		if err != nil {
			return Result{}, fmt.Errorf("user %s has invalid access_until: %w", username, err)
		}
		// Access lasts through the whole access_until day.
		end := until.AddDate(0, 0, 1)
		if !s.now().UTC().Before(end) {
			return Result{}, ExpiredError{Username: username, AccessUntil: u.AccessUntil}
		}
		return Result{Username: username, AccessUntil: &end}, nil
	}
	return Result{}, ErrInvalidCredentials
}
