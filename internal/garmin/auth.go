package garmin

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/fitupload/internal/tokenfile"
)

// oauthConfig builds the oauth2.Config for the refresh-token grant. Garmin's
// token endpoint expects the client ID in the form body, not basic auth.
func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// RefreshOAuth2 exchanges the stored refresh token for a new access token,
// whether or not the current one has expired. The new token replaces the
// session's token in memory only; call Dump to persist it.
func (c *Client) RefreshOAuth2(ctx context.Context) error {
	if c.token.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	c.logger.Info("refreshing oauth2 token", slog.String("token_url", c.tokenURL))

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	// A token with no access token is never valid, which forces the source
	// to run the refresh grant immediately.
	stale := &oauth2.Token{RefreshToken: c.token.RefreshToken}

	tok, err := c.oauthConfig().TokenSource(ctx, stale).Token()
	if err != nil {
		c.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return fmt.Errorf("garmin: refreshing oauth2 token: %w", err)
	}

	c.token = c.carryExtras(tok)

	c.logger.Info("oauth2 token refreshed", slog.Time("new_expiry", c.token.Expiry))

	return nil
}

// carryExtras copies the fields that live in the token response's extras
// (scope, jti, refresh expiry) into the shape tokenfile expects, falling back
// to the previous token's values when the response omits them.
func (c *Client) carryExtras(tok *oauth2.Token) *oauth2.Token {
	extra := map[string]any{
		tokenfile.ExtraScope:               c.token.Extra(tokenfile.ExtraScope),
		tokenfile.ExtraJTI:                 c.token.Extra(tokenfile.ExtraJTI),
		tokenfile.ExtraRefreshTokenExpires: c.token.Extra(tokenfile.ExtraRefreshTokenExpires),
	}

	if s, ok := tok.Extra(tokenfile.ExtraScope).(string); ok && s != "" {
		extra[tokenfile.ExtraScope] = s
	}

	if s, ok := tok.Extra(tokenfile.ExtraJTI).(string); ok && s != "" {
		extra[tokenfile.ExtraJTI] = s
	}

	if in, ok := tok.Extra("refresh_token_expires_in").(float64); ok && in > 0 {
		extra[tokenfile.ExtraRefreshTokenExpires] = c.nowFunc().Unix() + int64(in)
	}

	return tok.WithExtra(extra)
}
