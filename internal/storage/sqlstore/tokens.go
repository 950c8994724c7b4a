package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reviewsync/internal/domain"
)

func (r *Repo) GetToken(ctx context.Context, service string) (domain.OAuthToken, error) {
	var (
		t         domain.OAuthToken
		expiry    int64
		accountID sql.NullString
		location  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, r.d.Rebind(getTokenSQL), service).
		Scan(&t.Service, &t.AccessToken, &t.RefreshToken, &expiry, &accountID, &location)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OAuthToken{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OAuthToken{}, err
	}
	t.ExpiryDate = time.UnixMilli(expiry).UTC()
	t.AccountID = strPtr(accountID)
	t.LocationID = strPtr(location)
	return t, nil
}

func (r *Repo) InsertToken(ctx context.Context, t domain.OAuthToken) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(insertTokenSQL),
		t.Service,
		t.AccessToken,
		t.RefreshToken,
		t.ExpiryDate.UnixMilli(),
		valStr(t.AccountID),
		valStr(t.LocationID),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert token %s: %w", t.Service, err)
	}
	return nil
}

// UpdateToken rewrites the record in place. Nil account/location ids keep
// the stored values.
func (r *Repo) UpdateToken(ctx context.Context, t domain.OAuthToken) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(updateTokenSQL),
		t.AccessToken,
		t.RefreshToken,
		t.ExpiryDate.UnixMilli(),
		valStr(t.AccountID),
		valStr(t.LocationID),
		time.Now().UnixMilli(),
		t.Service,
	)
	if err != nil {
		return fmt.Errorf("update token %s: %w", t.Service, err)
	}
	return nil
}
