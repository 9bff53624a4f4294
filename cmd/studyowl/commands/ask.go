package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/studyowl/studyowl-go/internal/logging"
	"github.com/studyowl/studyowl-go/internal/provider"
	"github.com/studyowl/studyowl-go/internal/studyaid"
)

// NewAskCmd constructs the `studyowl ask` command, which answers a single
// question grounded in the given documents and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var docIDs []string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about processed documents",
		Long: `Ask a natural language question about one or more processed documents.

The answer is grounded in the chunks most relevant to the question — the
model is instructed to answer only from the retrieved material.

Examples:
  studyowl ask --doc 6c0f... "what are the phases of mitosis?"
  studyowl ask --doc 6c0f... --doc a41b... --sources "compare the two chapters"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if len(docIDs) == 0 {
				return fmt.Errorf("ask: at least one --doc is required")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			stack, err := buildStack(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer stack.Close()

			gen := studyaid.New(chatModel, stack.Retriever, studyaid.Config{})

			resp, err := gen.Chat(ctx, docIDs, nil, args[0])
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(resp.Text)

			if showSources && len(resp.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, src := range resp.Sources {
					fmt.Printf("  [%d] %s\n", i+1, src.Content)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&docIDs, "doc", "d", nil, "Document ID to search (repeatable)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the chunks that grounded the answer")

	return cmd
}
