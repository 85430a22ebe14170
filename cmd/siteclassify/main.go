package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shpitdev/site-classifier/internal/config"
	"github.com/shpitdev/site-classifier/internal/util"
)

const (
	exitRunFailure  = 1
	exitConfigError = 2
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "siteclassify",
	Short: "Classify facility types for company/address records",
	Long: `Reads a CSV of company/address records, gathers web evidence, and asks a
language model what kind of facility sits at each address. Output is the
input CSV with classification, evidence and query-plan columns appended, and
is checkpointed so interrupted runs resume from the cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error { return &exitError{code: exitConfigError, err: err} }
func runError(err error) error    { return &exitError{code: exitRunFailure, err: err} }

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./siteclassify.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (env: SITECLASSIFY_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or console (env: SITECLASSIFY_LOG_FORMAT)")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(os.Stderr, "error: %s\n", util.RedactSecrets(err.Error()))
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Unknown commands and bad flags.
	return exitConfigError
}
