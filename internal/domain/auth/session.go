// Package auth defines the session identity looked up for each authenticated
// request. Session issuance itself is an external collaborator; this service
// only resolves bearer tokens it is handed.
package auth

import "context"

// Role distinguishes shoppers from administrators.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Session holds the identity behind a validated bearer token.
type Session struct {
	UserID    string
	Role      Role
	TokenHash string
}

// Repository provides lookup of sessions by the HMAC hash of their token.
type Repository interface {
	FindByTokenHash(ctx context.Context, hash string) (*Session, error)
}
