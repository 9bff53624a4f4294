package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/studyowl/studyowl-go/internal/logging"
	"github.com/studyowl/studyowl-go/internal/provider"
	"github.com/studyowl/studyowl-go/internal/studyaid"
)

// NewQuizCmd constructs the `studyowl quiz` command, which generates a
// multiple-choice quiz from processed documents and prints it as JSON.
func NewQuizCmd() *cobra.Command {
	var docIDs []string
	var questionCount int

	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate a multiple-choice quiz from processed documents",
		Long: `Generate a multiple-choice quiz covering one or more processed documents.

Questions are spread across the whole document set via representative
sampling rather than clustering around any single section.

Examples:
  studyowl quiz --doc 6c0f...
  studyowl quiz --doc 6c0f... --questions 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if len(docIDs) == 0 {
				return fmt.Errorf("quiz: at least one --doc is required")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("quiz: failed to initialise model provider: %w", err)
			}

			stack, err := buildStack(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("quiz: %w", err)
			}
			defer stack.Close()

			gen := studyaid.New(chatModel, stack.Retriever, studyaid.Config{})

			quiz, err := gen.Quiz(ctx, docIDs, questionCount)
			if err != nil {
				return fmt.Errorf("quiz: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(quiz)
		},
	}

	cmd.Flags().StringArrayVarP(&docIDs, "doc", "d", nil, "Document ID to cover (repeatable)")
	cmd.Flags().IntVarP(&questionCount, "questions", "n", 0, "Number of questions (default: 5)")

	return cmd
}
