// Package uploader runs the upload-with-refresh sequence: load a session
// from a token directory, upload an activity file, and on failure refresh
// the OAuth2 token, persist it, and upload exactly once more.
package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/fitupload/internal/garmin"
)

// Session is the slice of the Garmin client the uploader drives. Defined at
// the consumer so tests can substitute a fake.
type Session interface {
	Upload(ctx context.Context, name string, r io.Reader) (*garmin.UploadResult, error)
	RefreshOAuth2(ctx context.Context) error
	Dump(dir string, oauth2Only bool) error
}

// LoadFunc restores a Session from a token directory.
type LoadFunc func(ctx context.Context, tokenDir string) (Session, error)

// Attempt describes one upload attempt, reported to a Recorder.
type Attempt struct {
	RunID    string
	FitPath  string
	Size     int64
	Number   int
	Result   *garmin.UploadResult
	Err      error
	Started  time.Time
	Finished time.Time
}

// Recorder receives every upload attempt. Recording must not fail the run,
// so implementations handle their own errors.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt)
}

// Outcome is the result of a successful Run.
type Outcome struct {
	Result    *garmin.UploadResult
	Attempts  int
	Refreshed bool
}

// Uploader holds the collaborators for Run.
type Uploader struct {
	Load     LoadFunc
	Out      io.Writer // result line
	Diag     io.Writer // failure diagnostics
	Logger   *slog.Logger
	Recorder Recorder // optional

	// Indent pretty-prints the result JSON.
	Indent bool

	nowFunc func() time.Time
}

// New returns an Uploader writing results to out and diagnostics to diag.
func New(load LoadFunc, out, diag io.Writer, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Uploader{
		Load:    load,
		Out:     out,
		Diag:    diag,
		Logger:  logger,
		nowFunc: time.Now,
	}
}

// Validate checks that tokenDir is an existing directory and fitPath exists.
func Validate(tokenDir, fitPath string) error {
	info, err := os.Stat(tokenDir)
	if err != nil || !info.IsDir() {
		return Usagef("Token directory not found: %s", tokenDir)
	}

	if _, err := os.Stat(fitPath); err != nil {
		return Usagef("FIT file not found: %s", fitPath)
	}

	return nil
}

// Run validates the inputs and uploads fitPath with the session stored in
// tokenDir. A failed first upload triggers one refresh, one refresh-only
// token persist and one more upload. Returns *UsageError for bad inputs and
// *FatalError for session failures.
func (u *Uploader) Run(ctx context.Context, tokenDir, fitPath string) (*Outcome, error) {
	if err := Validate(tokenDir, fitPath); err != nil {
		return nil, err
	}

	sess, err := u.Load(ctx, tokenDir)
	if err != nil {
		return nil, &FatalError{Stage: StageLoad, Err: err}
	}

	runID := uuid.NewString()
	u.Logger.Debug("starting upload run",
		slog.String("run_id", runID),
		slog.String("fit_path", fitPath),
	)

	result, firstErr := u.attempt(ctx, sess, runID, fitPath, 1)
	if firstErr == nil {
		return &Outcome{Result: result, Attempts: 1}, u.printResult(result)
	}

	fmt.Fprintf(u.Diag, "Upload failed, attempting token refresh: %v\n", firstErr)

	if err := sess.RefreshOAuth2(ctx); err != nil {
		return nil, &FatalError{Stage: StageRefresh, Err: err}
	}

	if err := sess.Dump(tokenDir, true); err != nil {
		return nil, &FatalError{Stage: StagePersist, Err: err}
	}

	result, err = u.attempt(ctx, sess, runID, fitPath, 2)
	if err != nil {
		return nil, &FatalError{Stage: StageRetry, Err: err}
	}

	return &Outcome{Result: result, Attempts: 2, Refreshed: true}, u.printResult(result)
}

// attempt opens fitPath, uploads it and closes it again, so every attempt
// reads the file from its start.
func (u *Uploader) attempt(
	ctx context.Context, sess Session, runID, fitPath string, number int,
) (*garmin.UploadResult, error) {
	a := Attempt{RunID: runID, FitPath: fitPath, Number: number, Started: u.nowFunc()}

	a.Result, a.Err = u.uploadFile(ctx, sess, fitPath, &a.Size)
	a.Finished = u.nowFunc()

	if a.Err != nil {
		u.Logger.Warn("upload attempt failed",
			slog.Int("attempt", number),
			slog.String("error", a.Err.Error()),
		)
	} else {
		u.Logger.Info("upload attempt succeeded",
			slog.Int("attempt", number),
			slog.Int64("upload_id", a.Result.UploadID),
		)
	}

	if u.Recorder != nil {
		u.Recorder.RecordAttempt(ctx, a)
	}

	return a.Result, a.Err
}

func (u *Uploader) uploadFile(
	ctx context.Context, sess Session, fitPath string, size *int64,
) (*garmin.UploadResult, error) {
	f, err := os.Open(fitPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fitPath, err)
	}
	defer f.Close()

	if info, statErr := f.Stat(); statErr == nil {
		*size = info.Size()
	}

	return sess.Upload(ctx, fitPath, f)
}

// printResult writes the labelled JSON result line.
func (u *Uploader) printResult(result *garmin.UploadResult) error {
	var (
		data []byte
		err  error
	)

	if u.Indent {
		data, err = json.MarshalIndent(result, "", "  ")
	} else {
		data, err = json.Marshal(result)
	}

	if err != nil {
		return fmt.Errorf("encoding upload result: %w", err)
	}

	if _, err := fmt.Fprintf(u.Out, "Upload response: %s\n", data); err != nil {
		return fmt.Errorf("writing upload result: %w", err)
	}

	return nil
}
