// Package tokenfile reads and writes the token directory shared with other
// Garmin Connect tools. A token directory holds oauth2_token.json (required)
// and oauth1_token.json (optional). The OAuth1 file is never interpreted here;
// it is carried as raw JSON so a refresh-only rewrite cannot damage it.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// File names inside a token directory.
const (
	OAuth1FileName = "oauth1_token.json"
	OAuth2FileName = "oauth2_token.json"
)

// Extra keys carried on oauth2.Token for fields that have no native slot.
const (
	ExtraScope               = "scope"
	ExtraJTI                 = "jti"
	ExtraRefreshTokenExpires = "refresh_token_expires_at"
)

// OAuth2File is the on-disk shape of oauth2_token.json.
type OAuth2File struct {
	Scope                 string `json:"scope,omitempty"`
	JTI                   string `json:"jti,omitempty"`
	TokenType             string `json:"token_type"`
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	ExpiresAt             int64  `json:"expires_at"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in,omitempty"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at,omitempty"`
}

// Set is the loaded content of a token directory.
type Set struct {
	OAuth2 *oauth2.Token
	// OAuth1 is the raw oauth1_token.json content, nil when the file is absent.
	OAuth1 json.RawMessage
}

// Load reads a token directory. Returns (nil, nil) if oauth2_token.json
// does not exist.
func Load(dir string) (*Set, error) {
	path := filepath.Join(dir, OAuth2FileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var f OAuth2File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if f.AccessToken == "" && f.RefreshToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has neither access nor refresh token", path)
	}

	set := &Set{OAuth2: f.Token()}

	oauth1Path := filepath.Join(dir, OAuth1FileName)

	raw, err := os.ReadFile(oauth1Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("tokenfile: reading %s: %w", oauth1Path, err)
	case !json.Valid(raw):
		return nil, fmt.Errorf("tokenfile: %s is not valid JSON", oauth1Path)
	default:
		set.OAuth1 = raw
	}

	return set, nil
}

// Token converts the file representation into an oauth2.Token. Fields with
// no native slot ride along as extras.
func (f *OAuth2File) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  f.AccessToken,
		TokenType:    f.TokenType,
		RefreshToken: f.RefreshToken,
		ExpiresIn:    f.ExpiresIn,
	}

	if f.ExpiresAt > 0 {
		tok.Expiry = time.Unix(f.ExpiresAt, 0)
	}

	return tok.WithExtra(map[string]any{
		ExtraScope:               f.Scope,
		ExtraJTI:                 f.JTI,
		ExtraRefreshTokenExpires: f.RefreshTokenExpiresAt,
	})
}

// FromToken builds the file representation of tok. now anchors the
// *_expires_in fields.
func FromToken(tok *oauth2.Token, now time.Time) OAuth2File {
	f := OAuth2File{
		TokenType:    tok.TokenType,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}

	if s, ok := tok.Extra(ExtraScope).(string); ok {
		f.Scope = s
	}

	if s, ok := tok.Extra(ExtraJTI).(string); ok {
		f.JTI = s
	}

	if !tok.Expiry.IsZero() {
		f.ExpiresAt = tok.Expiry.Unix()
		f.ExpiresIn = max(0, f.ExpiresAt-now.Unix())
	}

	f.RefreshTokenExpiresAt = extraInt64(tok.Extra(ExtraRefreshTokenExpires))
	if f.RefreshTokenExpiresAt > 0 {
		f.RefreshTokenExpiresIn = max(0, f.RefreshTokenExpiresAt-now.Unix())
	}

	return f
}

// extraInt64 accepts the numeric shapes an extra can take: int64 from
// OAuth2File.Token, float64 or json.Number from a decoded token response.
func extraInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

// SaveOAuth2 writes oauth2_token.json atomically. The relative expires_in
// fields are computed against now. Never logs token values.
func SaveOAuth2(dir string, tok *oauth2.Token, now time.Time) error {
	f := FromToken(tok, now)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	return writeAtomic(filepath.Join(dir, OAuth2FileName), data)
}

// SaveOAuth1 writes raw as oauth1_token.json atomically.
func SaveOAuth1(dir string, raw json.RawMessage) error {
	if !json.Valid(raw) {
		return errors.New("tokenfile: oauth1 token is not valid JSON")
	}

	return writeAtomic(filepath.Join(dir, OAuth1FileName), raw)
}

// writeAtomic writes data to path (write-to-temp + rename) with 0600
// permissions.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a power loss cannot leave a partial token file.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}
