package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/fitupload/internal/tokenfile"
)

const testOAuth1 = `{"oauth_token":"o1","oauth_token_secret":"s1","domain":"garmin.com"}`

// writeTokenDir creates a token directory holding the given access and
// refresh tokens plus an OAuth1 file.
func writeTokenDir(t *testing.T, access, refresh string) string {
	t.Helper()

	dir := t.TempDir()
	oauth2JSON := fmt.Sprintf(`{
		"scope": "CONNECT_WRITE",
		"jti": "jti-old",
		"token_type": "Bearer",
		"access_token": %q,
		"refresh_token": %q,
		"expires_in": 3600,
		"expires_at": 4070908800
	}`, access, refresh)

	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenfile.OAuth2FileName), []byte(oauth2JSON), tokenfile.FilePerms))
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenfile.OAuth1FileName), []byte(testOAuth1), tokenfile.FilePerms))

	return dir
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func loadTestClient(t *testing.T, dir, baseURL, tokenURL string) *Client {
	t.Helper()

	c, err := Load(context.Background(), dir,
		WithBaseURL(baseURL),
		WithTokenURL(tokenURL),
		WithClientID("test-client"),
		WithUserAgent("fitupload-test"),
		WithHTTPClient(http.DefaultClient),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)

	return c
}

const uploadOKBody = `{"detailedImportResult":{
	"uploadId": 123456,
	"uploadUuid": {"uuid": "a1b2c3"},
	"owner": 42,
	"fileSize": 11,
	"processingTime": 37,
	"creationDate": "2026-10-18 08:00:00.0 GMT",
	"fileName": "morning_run.fit",
	"successes": [],
	"failures": []
}}`

func TestLoad_NoTokens(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), WithLogger(testLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTokens)
}

func TestLoad_CorruptTokens(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenfile.OAuth2FileName), []byte(`{`), tokenfile.FilePerms))

	_, err := Load(context.Background(), dir, WithLogger(testLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading tokens")
}

func TestUpload_Success(t *testing.T) {
	content := "FIT-PAYLOAD"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, uploadPath, r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "fitupload-test", r.Header.Get("User-Agent"))
		assert.Positive(t, r.ContentLength)

		file, header, err := r.FormFile(uploadFieldName)
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "morning_run.fit", header.Filename)

		body, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, content, string(body))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, uploadOKBody)
	}))
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), srv.URL, srv.URL+"/token")

	result, err := c.Upload(context.Background(), "/tmp/activities/morning_run.fit", strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, int64(123456), result.UploadID)
	require.NotNil(t, result.UploadUUID)
	assert.Equal(t, "a1b2c3", result.UploadUUID.UUID)
	assert.Equal(t, "morning_run.fit", result.FileName)
}

func TestUpload_NormalizesFileName(t *testing.T) {
	// "e" followed by a combining acute accent (NFD).
	decomposed := "cafe\u0301.fit"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile(uploadFieldName)
		require.NoError(t, err)
		assert.Equal(t, "caf\u00e9.fit", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, uploadOKBody)
	}))
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), srv.URL, srv.URL+"/token")

	_, err := c.Upload(context.Background(), decomposed, strings.NewReader("x"))
	require.NoError(t, err)
}

func TestUpload_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"token expired"}`)
	}))
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "stale", "refresh-1"), srv.URL, srv.URL+"/token")

	_, err := c.Upload(context.Background(), "a.fit", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "token expired")
}

func TestUpload_DuplicateIsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"detailedImportResult":{"failures":[{"messages":[{"code":202,"content":"Duplicate Activity."}]}]}}`)
	}))
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), srv.URL, srv.URL+"/token")

	_, err := c.Upload(context.Background(), "a.fit", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "Duplicate Activity.")
}

func TestUpload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), srv.URL, srv.URL+"/token")

	_, err := c.Upload(context.Background(), "a.fit", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrServerError)
}

func TestUpload_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), srv.URL, srv.URL+"/token")

	_, err := c.Upload(context.Background(), "a.fit", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding upload response")
}

func TestUpload_NoAccessTokenSkipsRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "", "refresh-1"), srv.URL, srv.URL+"/token")

	_, err := c.Upload(context.Background(), "a.fit", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, calls)
}

func TestUpload_NetworkError(t *testing.T) {
	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), "http://127.0.0.1:1", "http://127.0.0.1:1/token")

	_, err := c.Upload(context.Background(), "a.fit", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), uploadPath)
}

func tokenServer(t *testing.T, status int, body string, seen *[]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "test-client", r.PostForm.Get("client_id"))

		if seen != nil {
			*seen = append(*seen, r.PostForm.Get("refresh_token"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestRefreshOAuth2_Success(t *testing.T) {
	var seen []string
	srv := tokenServer(t, http.StatusOK, `{
		"access_token": "access-2",
		"refresh_token": "refresh-2",
		"token_type": "bearer",
		"expires_in": 3600,
		"refresh_token_expires_in": 7200,
		"jti": "jti-new"
	}`, &seen)
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), srv.URL, srv.URL)
	now := time.Unix(2_000_000_000, 0)
	c.nowFunc = func() time.Time { return now }

	require.NoError(t, c.RefreshOAuth2(context.Background()))

	assert.Equal(t, []string{"refresh-1"}, seen)

	tok := c.token
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, "refresh-2", tok.RefreshToken)
	assert.Equal(t, "jti-new", tok.Extra(tokenfile.ExtraJTI))
	assert.Equal(t, "CONNECT_WRITE", tok.Extra(tokenfile.ExtraScope))
	assert.Equal(t, now.Unix()+7200, tok.Extra(tokenfile.ExtraRefreshTokenExpires))
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
}

func TestRefreshOAuth2_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, `{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`, nil)
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), srv.URL, srv.URL)

	require.NoError(t, c.RefreshOAuth2(context.Background()))

	tok := c.token
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
}

func TestRefreshOAuth2_Rejected(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil)
	defer srv.Close()

	c := loadTestClient(t, writeTokenDir(t, "access-1", "refresh-1"), srv.URL, srv.URL)

	err := c.RefreshOAuth2(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refreshing oauth2 token")

	// The old token stays in place.
	assert.Equal(t, "access-1", c.token.AccessToken)
}

func TestRefreshOAuth2_NoRefreshToken(t *testing.T) {
	c := loadTestClient(t, writeTokenDir(t, "access-1", ""), "http://127.0.0.1:1", "http://127.0.0.1:1")

	assert.ErrorIs(t, c.RefreshOAuth2(context.Background()), ErrNoRefreshToken)
}

func TestDump_OAuth2OnlyLeavesOAuth1(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, `{"access_token":"access-2","refresh_token":"refresh-2","token_type":"Bearer","expires_in":3600}`, nil)
	defer srv.Close()

	dir := writeTokenDir(t, "access-1", "refresh-1")
	oauth1Path := filepath.Join(dir, tokenfile.OAuth1FileName)

	// Make the OAuth1 file distinguishable from anything Dump would write.
	sentinel := []byte("{\"oauth_token\":\"o1\"}  \n")
	require.NoError(t, os.WriteFile(oauth1Path, sentinel, tokenfile.FilePerms))

	c := loadTestClient(t, dir, srv.URL, srv.URL)
	require.NoError(t, c.RefreshOAuth2(context.Background()))
	require.NoError(t, c.Dump(dir, true))

	got, err := os.ReadFile(oauth1Path)
	require.NoError(t, err)
	assert.Equal(t, sentinel, got)

	set, err := tokenfile.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "access-2", set.OAuth2.AccessToken)
	assert.Equal(t, "refresh-2", set.OAuth2.RefreshToken)
}

func TestDump_FullWritesBothFiles(t *testing.T) {
	src := writeTokenDir(t, "access-1", "refresh-1")
	c := loadTestClient(t, src, "http://127.0.0.1:1", "http://127.0.0.1:1")

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, c.Dump(dst, false))

	raw, err := os.ReadFile(filepath.Join(dst, tokenfile.OAuth1FileName))
	require.NoError(t, err)
	assert.JSONEq(t, testOAuth1, string(raw))

	var f tokenfile.OAuth2File
	data, err := os.ReadFile(filepath.Join(dst, tokenfile.OAuth2FileName))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, "access-1", f.AccessToken)
	assert.Equal(t, "jti-old", f.JTI)
}

func TestDump_ExpiresInUsesClientClock(t *testing.T) {
	dir := writeTokenDir(t, "access-1", "refresh-1")
	c := loadTestClient(t, dir, "http://127.0.0.1:1", "http://127.0.0.1:1")

	// writeTokenDir stores expires_at 4070908800; one hour earlier.
	c.nowFunc = func() time.Time { return time.Unix(4070905200, 0) }

	require.NoError(t, c.Dump(dir, true))

	var f tokenfile.OAuth2File
	data, err := os.ReadFile(filepath.Join(dir, tokenfile.OAuth2FileName))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, int64(3600), f.ExpiresIn)
	assert.Equal(t, int64(4070908800), f.ExpiresAt)
}
