package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/amishk599/promptopt/internal/tui"
)

var tryCmd = &cobra.Command{
	Use:   "try",
	Short: "Interactive prompt playground",
	Long:  "Open a terminal playground that scores, titles and extends prompts through the same pipeline as the API.",
	Args:  cobra.NoArgs,
	RunE:  runTry,
}

func init() {
	tryCmd.Flags().StringVar(&apiKey, "api-key", "", "LLM provider api key (default: PROMPTOPT_API_KEY env var)")
	rootCmd.AddCommand(tryCmd)
}

func runTry(cmd *cobra.Command, args []string) error {
	// Log output would corrupt the alt screen.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	// Warn on the normal screen before the playground takes over.
	dropAmbientCredentials(setupLogger(debug, logFormat))
	key, err := resolveAPIKey(apiKey)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, false, logger)
	if err != nil {
		return err
	}

	// Two attempts plus the retry delay.
	timeout := 2*cfg.LLM.Timeout + cfg.LLM.RetryDelay + cfg.LLM.MaxUpstreamWait
	return tui.RunPlayground(p.orch, key, timeout)
}
