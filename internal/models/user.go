// Package models holds the persisted entity types shared by repositories and
// services.
package models

import "time"

// User is a fellis account. ExternalToken holds the encrypted third-party
// access token (vault format); TokenExpiresAt stays plaintext so the
// retention sweeper can query it without decrypting anything.
type User struct {
	ID                string
	Email             string
	Name              string
	PasswordHash      string
	AvatarPath        string
	ExternalAccountID string
	ExternalToken     string
	TokenExpiresAt    *time.Time
	LastImportAt      *time.Time
	FriendCount       int
	PhotoCount        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
