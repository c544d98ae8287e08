package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-progress/internal/app"
	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/platform/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "progressctl",
		Short:         "Inspect and update student learning progress",
		Long:          "progressctl reads and updates the same progress store as the server, using the LEARN_* configuration.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("env-file", ".env", "Path to an env file with LEARN_* settings")
	flags.String("backend", "", "Storage backend: file or postgres (overrides LEARN_STORAGE_BACKEND)")
	flags.String("progress-file", "", "Progress JSON file (overrides LEARN_PROGRESS_FILE)")
	flags.String("curriculum", "", "Curriculum directory (overrides LEARN_CURRICULUM_PATH)")
	flags.String("log-level", "warn", "Log level for diagnostics on stderr")
	flags.Bool("json", false, "Print JSON instead of text")

	root.AddCommand(
		newStudentsCmd(),
		newSummaryCmd(),
		newReportCmd(),
		newWeakCmd(),
		newRecommendCmd(),
		newPlanCmd(),
		newAnalyzeCmd(),
		newRateCmd(),
		newTaskCmd(),
		newExportCmd(),
		newDigestCmd(),
	)
	return root
}

// openApp loads configuration, applies flag overrides and builds the app.
func openApp(cmd *cobra.Command) (*app.App, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level, _ := cmd.Flags().GetString("log-level")
	logging.Setup(cmd.ErrOrStderr(), level, "text")

	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Storage.Backend = v
	}
	if v, _ := cmd.Flags().GetString("progress-file"); v != "" {
		cfg.Storage.ProgressFile = v
	}
	if v, _ := cmd.Flags().GetString("curriculum"); v != "" {
		cfg.CurriculumPath = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open progress store: %w", err)
	}
	return a, nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
