package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/fitupload/internal/garmin"
	"github.com/tonimelisma/fitupload/internal/history"
	"github.com/tonimelisma/fitupload/internal/uploader"
)

func runUpload(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	tokenDir, fitPath := args[0], args[1]

	out := cmd.OutOrStdout()

	up := uploader.New(sessionLoader(cc), out, cmd.ErrOrStderr(), cc.Logger)
	if f, ok := out.(*os.File); ok {
		up.Indent = isatty.IsTerminal(f.Fd())
	}

	if cc.Cfg.HistoryDB != "" {
		store, err := history.Open(ctx, cc.Cfg.HistoryDB, cc.Logger)
		if err != nil {
			// The ledger is optional; an unusable one must not block the upload.
			cc.Logger.Warn("upload history disabled", slog.String("error", err.Error()))
		} else {
			defer store.Close()
			up.Recorder = &historyRecorder{store: store, logger: cc.Logger}
		}
	}

	if info, err := os.Stat(fitPath); err == nil {
		cc.Statusf("Uploading %s (%s)\n", info.Name(), humanize.IBytes(uint64(info.Size())))
	}

	outcome, err := up.Run(ctx, tokenDir, fitPath)
	if err != nil {
		return err
	}

	if outcome.Refreshed {
		cc.Statusf("Uploaded after token refresh (upload id %d)\n", outcome.Result.UploadID)
	}

	return nil
}

// sessionLoader returns the uploader's LoadFunc, building a Garmin client
// from the resolved configuration.
func sessionLoader(cc *CLIContext) uploader.LoadFunc {
	cfg := cc.Cfg

	return func(ctx context.Context, tokenDir string) (uploader.Session, error) {
		client, err := garmin.Load(ctx, tokenDir,
			garmin.WithBaseURL(cfg.BaseURL),
			garmin.WithTokenURL(cfg.TokenURL),
			garmin.WithClientID(cfg.ClientID),
			garmin.WithUserAgent(cfg.UserAgent),
			garmin.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout()}),
			garmin.WithLogger(cc.Logger),
		)
		if err != nil {
			return nil, err
		}

		return client, nil
	}
}
