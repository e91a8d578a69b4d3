package queue

import "context"

// Routing keys on the auth events exchange.
const (
	KeyUserRegistered = "user.registered"
	KeyUserVerified   = "user.verified"
	KeyUserLoggedIn   = "user.loggedin"
	KeyPasswordReset  = "user.password_reset"
)

type Publisher interface {
	Publish(ctx context.Context, exchange, key string, event any, reqID string) error
	Close() error
}

type NoopPub struct{}

func NewNoop() Publisher { return NoopPub{} }

func (NoopPub) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	return nil
}
func (NoopPub) Close() error { return nil }

type UserRegistered struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type UserVerified struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type UserLoggedIn struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Method string `json:"method"` // "password" | "google"
}

type PasswordReset struct {
	UserID string `json:"user_id"`
}
