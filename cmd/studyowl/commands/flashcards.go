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

// NewFlashcardsCmd constructs the `studyowl flashcards` command, which
// generates a flashcard deck from processed documents and prints it as JSON.
func NewFlashcardsCmd() *cobra.Command {
	var docIDs []string
	var count int

	cmd := &cobra.Command{
		Use:   "flashcards",
		Short: "Generate flashcards from processed documents",
		Long: `Generate a front/back flashcard deck covering one or more processed
documents, sampled to span the full material.

Examples:
  studyowl flashcards --doc 6c0f...
  studyowl flashcards --doc 6c0f... --count 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if len(docIDs) == 0 {
				return fmt.Errorf("flashcards: at least one --doc is required")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("flashcards: failed to initialise model provider: %w", err)
			}

			stack, err := buildStack(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("flashcards: %w", err)
			}
			defer stack.Close()

			gen := studyaid.New(chatModel, stack.Retriever, studyaid.Config{})

			cards, err := gen.Flashcards(ctx, docIDs, count)
			if err != nil {
				return fmt.Errorf("flashcards: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cards)
		},
	}

	cmd.Flags().StringArrayVarP(&docIDs, "doc", "d", nil, "Document ID to cover (repeatable)")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of flashcards (default: 10)")

	return cmd
}
