package domain

import "time"

// OAuthToken is stored once per service and refreshed in place.
type OAuthToken struct {
	Service      string
	AccessToken  string
	RefreshToken string
	ExpiryDate   time.Time
	AccountID    *string
	LocationID   *string
}
