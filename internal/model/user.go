// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the profile of someone who signed in with GitHub.
//
// Email is the identity: tracked repositories point at their owner by email,
// and the webhook pipeline resolves notification recipients through it.
// The record is upserted on every sign-in and never deleted here.
type User struct {
	Email      string    `json:"email"      db:"email"`
	Login      string    `json:"login"      db:"login"` // GitHub username, e.g. "octocat"
	Name       string    `json:"name"       db:"name"`
	Image      string    `json:"image"      db:"image"` // avatar URL
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	LastSignIn time.Time `json:"lastSignIn" db:"last_sign_in"`
}
