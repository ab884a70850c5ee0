package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after all four override layers
// (defaults -> file -> env -> CLI) have been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.Path)

	ew.printf("# garmin\n")
	ew.printf("base_url   = %q\n", r.BaseURL)
	ew.printf("token_url  = %q\n", r.TokenURL)
	ew.printf("client_id  = %q\n", r.ClientID)
	ew.printf("user_agent = %q\n", r.UserAgent)
	ew.printf("\n# network\n")
	ew.printf("timeout    = %q\n", r.Timeout)
	ew.printf("\n# logging\n")
	ew.printf("log_level  = %q\n", r.LogLevel)
	ew.printf("\n# history\n")

	if r.HistoryDB == "" {
		ew.printf("# history_db is unset; upload attempts are not recorded\n")
	} else {
		ew.printf("history_db = %q\n", r.HistoryDB)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
