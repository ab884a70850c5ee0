package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/fitupload/internal/history"
	"github.com/tonimelisma/fitupload/internal/uploader"
)

const defaultHistoryLimit = 20

// historyRecorder adapts the history store to uploader.Recorder. Record
// failures are logged; they never change the outcome of an upload.
type historyRecorder struct {
	store  *history.Store
	logger *slog.Logger
}

func (r *historyRecorder) RecordAttempt(ctx context.Context, a uploader.Attempt) {
	row := history.Attempt{
		RunID:      a.RunID,
		FitPath:    a.FitPath,
		FileSize:   a.Size,
		Attempt:    a.Number,
		Status:     history.StatusUploaded,
		StartedAt:  a.Started,
		FinishedAt: a.Finished,
	}

	if a.Err != nil {
		row.Status = history.StatusFailed
		row.Error = a.Err.Error()
	} else if a.Result != nil {
		row.UploadID = a.Result.UploadID
	}

	if err := r.store.Record(ctx, row); err != nil {
		r.logger.Warn("failed to record upload attempt",
			slog.Int("attempt", a.Number),
			slog.String("error", err.Error()),
		)
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		limit    int
		jsonMode bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent upload attempts",
		Long: `List recent upload attempts from the history database, newest first.

History is recorded only when history_db is set in the config file,
FITUPLOAD_HISTORY is set, or --history is given.`,
		Args: noPositionalArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit, jsonMode)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "maximum number of attempts to show")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "output in JSON format")

	return cmd
}

// historyJSON is the JSON shape of one attempt.
type historyJSON struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	FitPath    string `json:"fit_path"`
	FileSize   int64  `json:"file_size"`
	Attempt    int    `json:"attempt"`
	Status     string `json:"status"`
	UploadID   int64  `json:"upload_id,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

func runHistory(cmd *cobra.Command, limit int, jsonMode bool) error {
	cc := mustCLIContext(cmd.Context())

	if limit <= 0 {
		return uploader.Usagef("--limit must be positive, got %d", limit)
	}

	if cc.Cfg.HistoryDB == "" {
		return errors.New("upload history is disabled: set history_db, FITUPLOAD_HISTORY or --history")
	}

	store, err := history.Open(cmd.Context(), cc.Cfg.HistoryDB, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	attempts, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if jsonMode {
		return printHistoryJSON(cmd.OutOrStdout(), attempts)
	}

	if len(attempts) == 0 {
		cc.Statusf("No upload attempts recorded.\n")
		return nil
	}

	printHistoryTable(cmd.OutOrStdout(), attempts)

	return nil
}

func printHistoryJSON(w io.Writer, attempts []history.Attempt) error {
	out := make([]historyJSON, 0, len(attempts))

	for _, a := range attempts {
		out = append(out, historyJSON{
			ID:         a.ID,
			RunID:      a.RunID,
			FitPath:    a.FitPath,
			FileSize:   a.FileSize,
			Attempt:    a.Attempt,
			Status:     a.Status,
			UploadID:   a.UploadID,
			Error:      a.Error,
			StartedAt:  a.StartedAt.UTC().Format(timeFormatJSON),
			FinishedAt: a.FinishedAt.UTC().Format(timeFormatJSON),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	return nil
}

func printHistoryTable(w io.Writer, attempts []history.Attempt) {
	headers := []string{"WHEN", "ATTEMPT", "STATUS", "SIZE", "UPLOAD ID", "FILE", "ERROR"}
	rows := make([][]string, 0, len(attempts))

	for _, a := range attempts {
		uploadID := ""
		if a.UploadID != 0 {
			uploadID = strconv.FormatInt(a.UploadID, 10)
		}

		rows = append(rows, []string{
			humanize.Time(a.StartedAt),
			strconv.Itoa(a.Attempt),
			a.Status,
			formatSize(a.FileSize),
			uploadID,
			a.FitPath,
			truncateCell(a.Error, maxErrorCell),
		})
	}

	printTable(w, headers, rows)
}
