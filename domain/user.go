// Package domain contains core concepts of the chat system.
// This file defines User identities and their roster-facing shape.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// User is the identity resolved by the verifier.
// Immutable once issued; the gateway references it but never mutates it.
type User struct {
	ID        int64
	Username  string
	Email     string
	CreatedAt time.Time
}

// UserSummary is the light record exposed to peers in rosters,
// presence broadcasts, and message sender attributions.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

func (u User) Summary(online bool) UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, IsOnline: online}
}
