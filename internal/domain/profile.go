package domain

import "time"

// Profile is the public identity of a platform user.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
