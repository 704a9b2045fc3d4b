package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/promptopt/internal/model"
	"github.com/amishk599/promptopt/internal/tui"
)

// cliClient is the rate-limit identity for one-shot CLI runs.
const cliClient = "cli"

var (
	apiKey        string
	withTitle     bool
	withFollowUps bool
)

var scoreCmd = &cobra.Command{
	Use:   "score [text]",
	Short: "Score and rewrite a prompt once",
	Long:  "Run the score pipeline on the given text (or stdin) with your own provider key and print the result.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&apiKey, "api-key", "", "LLM provider api key (default: PROMPTOPT_API_KEY env var)")
	scoreCmd.Flags().BoolVar(&withTitle, "title", false, "also infer a title and category")
	scoreCmd.Flags().BoolVar(&withFollowUps, "next", false, "also suggest follow-up prompts based on the rewrite")
	rootCmd.AddCommand(scoreCmd)
}

// resolveAPIKey returns the flag value, falling back to PROMPTOPT_API_KEY.
func resolveAPIKey(flagValue string) (model.APIKey, error) {
	key := flagValue
	if key == "" {
		key = os.Getenv("PROMPTOPT_API_KEY")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("no api key: pass --api-key or set PROMPTOPT_API_KEY")
	}
	return model.APIKey(key), nil
}

func readPromptText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func runScore(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, logFormat)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	dropAmbientCredentials(logger)
	key, err := resolveAPIKey(apiKey)
	if err != nil {
		return err
	}
	text, err := readPromptText(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, false, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	result, err := tui.RunLoader(ctx, "Scoring prompt", func(ctx context.Context) (model.ScoreResult, error) {
		return p.orch.Score(ctx, cliClient, model.ScoreRequest{Text: text, APIKey: key})
	})
	if err != nil {
		fmt.Fprintln(out, tui.RenderError(err))
		return err
	}
	fmt.Fprintln(out, tui.RenderScore(result, 80))

	if withTitle {
		meta, err := tui.RunLoader(ctx, "Inferring title", func(ctx context.Context) (model.MetadataResult, error) {
			return p.orch.InferMetadata(ctx, cliClient, model.MetadataRequest{Prompt: text, APIKey: key})
		})
		if err != nil {
			fmt.Fprintln(out, tui.RenderError(err))
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, tui.RenderMetadata(meta))
	}

	if withFollowUps {
		next, err := tui.RunLoader(ctx, "Suggesting follow-ups", func(ctx context.Context) (model.SuggestResult, error) {
			return p.orch.SuggestNext(ctx, cliClient, model.SuggestRequest{
				LastPrompt:   text,
				LastResponse: result.Rewrite,
				APIKey:       key,
			})
		})
		if err != nil {
			fmt.Fprintln(out, tui.RenderError(err))
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, tui.RenderSuggestions(next, 80))
	}
	return nil
}
