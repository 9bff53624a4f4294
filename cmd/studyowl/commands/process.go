package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/studyowl/studyowl-go/internal/embedder"
	"github.com/studyowl/studyowl-go/internal/logging"
)

// NewProcessCmd constructs the `studyowl process` command, which runs a
// single document through the full pipeline from the CLI: stage the bytes,
// register the job, then poll until the document reaches a terminal stage.
func NewProcessCmd() *cobra.Command {
	var mimeType string
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Process a document into the knowledge base",
		Long: `Extract, chunk, and embed a document so it can back chat, quiz, and
flashcard generation.

The command drives the same poll-based pipeline the HTTP server exposes:
each poll advances the document as far as possible and reports progress.
A document that finishes with some failed chunks is still usable — the
command reports partial completion and exits successfully.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: studyowl-chunks)
  EMBEDDING_*          Embedding backend overrides (see README)

Examples:
  studyowl process notes.txt
  studyowl process --mime-type text/markdown chapter3.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if err := embedder.Preflight(log); err != nil {
				return fmt.Errorf("process: %w", err)
			}

			stack, err := buildStack(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("process: %w", err)
			}
			defer stack.Close()

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("process: read %s: %w", path, err)
			}

			if mimeType == "" {
				mimeType = inferMimeType(path)
			}

			documentID := uuid.NewString()
			sourceRef := documentID + ".upload"
			if err := stack.Blobs.Put(ctx, sourceRef, data); err != nil {
				return fmt.Errorf("process: stage document: %w", err)
			}

			if err := stack.Controller.Start(ctx, documentID, sourceRef, mimeType); err != nil {
				return fmt.Errorf("process: %w", err)
			}
			fmt.Printf("document %s accepted (%d bytes, %s)\n", documentID, len(data), mimeType)

			for {
				st, err := stack.Controller.Poll(ctx, documentID)
				if err != nil {
					return fmt.Errorf("process: poll: %w", err)
				}

				fmt.Printf("  %-20s %5.1f%%  %s\n", st.Stage, st.Progress, st.Message)

				if st.Finished() {
					if st.Chunks.Failed > 0 {
						fmt.Printf("done with %d failed of %d chunks\n", st.Chunks.Failed, st.Chunks.Total)
					} else {
						fmt.Printf("done: %d chunks embedded\n", st.Chunks.Completed)
					}
					return nil
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(pollInterval):
				}
			}
		},
	}

	cmd.Flags().StringVarP(&mimeType, "mime-type", "m", "", "Document media type (default: inferred from the file extension)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Second, "Delay between status polls")

	return cmd
}

// inferMimeType maps common file extensions onto the pipeline's supported
// media types, defaulting to plain text.
func inferMimeType(path string) string {
	switch filepath.Ext(path) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	default:
		return "text/plain"
	}
}
