package store

import "time"

// User is an account that can sign in to the API. Each user belongs to
// exactly one organization (the tenant whose document they sync).
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	OrgID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Organization is one tenant: an id plus its full JSON document. The
// document column is the blob the sync protocol overwrites wholesale.
type Organization struct {
	ID        string
	Document  []byte
	UpdatedAt time.Time
}
