// Package cli provides the mmctl operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/bootstrap"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/config"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

type cli struct {
	out, errOut io.Writer

	backend    string
	dbPath     string
	outputText bool

	app *bootstrap.App
	now func() time.Time
}

// newRoot builds the mmctl command tree writing to out and errOut.
func newRoot(out, errOut io.Writer) (*cobra.Command, *cli) {
	c := &cli{
		out:    out,
		errOut: errOut,
		now:    func() time.Time { return time.Now().UTC() },
	}

	root := &cobra.Command{
		Use:   "mmctl",
		Short: "Operator tooling for Mind Measure check-ins",
		Long: `mmctl - inspect and repair check-in data

Examples:
  mmctl report --user u-123 --days 30     # Rollup for the last 30 days
  mmctl sessions --user u-123 --days 7    # Completed sessions in the window
  mmctl trend --user u-123 --type checkin # Score series
  mmctl cancel 5f0c... --reason abandoned # Cancel a stuck session`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.open,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&c.backend, "backend", config.BackendSQLite, "Storage backend: sqlite or firestore")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite database path (default from MM_SQLITE_PATH)")
	root.PersistentFlags().BoolVar(&c.outputText, "text", false, "Human-readable text output (default is JSON)")

	root.AddCommand(
		c.reportCmd(),
		c.sessionsCmd(),
		c.trendCmd(),
		c.cancelCmd(),
	)
	return root, c
}

// Execute runs mmctl and reports a failure in the selected output format.
func Execute(ctx context.Context, out, errOut io.Writer, args []string) error {
	root, c := newRoot(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	if err != nil {
		writeError(errOut, err, c.outputText)
	}
	return err
}

// close runs after the command whether or not it failed.
func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func (c *cli) open(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Operator output goes to out; keep service logs quiet unless asked.
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	observability.SetLevel(cfg.LogLevel)

	cfg.StorageBackend = c.backend
	if c.dbPath != "" {
		cfg.SQLitePath = c.dbPath
	}
	if c.backend != config.BackendSQLite && c.backend != config.BackendFirestore {
		return fmt.Errorf("--backend must be sqlite or firestore, got %q", c.backend)
	}
	if c.backend == config.BackendFirestore && cfg.GCPProjectID == "" {
		return fmt.Errorf("MM_GCP_PROJECT is required for the firestore backend")
	}

	app, err := bootstrap.New(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	app.Sessions.WithClock(c.now)
	app.Reports.WithClock(c.now)
	c.app = app
	return nil
}

// output writes JSON by default, or the text rendering when --text is set.
func (c *cli) output(result any, text func(w io.Writer)) error {
	if c.outputText {
		text(c.out)
		return nil
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func writeError(w io.Writer, err error, text bool) {
	if text {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "error",
		"error":  err.Error(),
	})
}
