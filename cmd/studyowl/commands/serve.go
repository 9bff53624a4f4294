package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/studyowl/studyowl-go/internal/embedder"
	"github.com/studyowl/studyowl-go/internal/logging"
	"github.com/studyowl/studyowl-go/internal/provider"
	"github.com/studyowl/studyowl-go/internal/server"
	"github.com/studyowl/studyowl-go/internal/studyaid"
	"github.com/studyowl/studyowl-go/internal/tracing"
)

// NewServeCmd constructs the `studyowl serve` command, which starts the HTTP
// server exposing the document pipeline and the study-aid endpoints.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the StudyOwl HTTP server",
		Long: `Start the StudyOwl HTTP server on localhost.

The server exposes the document processing API (upload, status polling, the
direct chunk trigger) and the study-aid endpoints (chat, quiz, flashcards).
Document processing is driven by status polls, so no background scheduler
runs — each poll advances the pipeline as far as the current state allows.

Examples:
  studyowl serve
  studyowl serve --port 9090
  MODEL_PROVIDER=azure studyowl serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Catch chat-model-as-embedder misconfigurations at startup, not
			// on the first upload.
			if err := embedder.Preflight(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			reg := prometheus.NewRegistry()

			stack, err := buildStack(ctx, log, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stack.Close()

			gen := studyaid.New(chatModel, stack.Retriever, studyaid.Config{
				MatchCount: getEnvInt("STUDYAID_MATCH_COUNT", 0),
				SampleSize: getEnvInt("STUDYAID_SAMPLE_SIZE", 0),
			})

			pingers := []server.Pinger{
				server.NewDependencyPinger(stack.Store, "sqlite"),
				server.NewDependencyPinger(stack.Vectors, "qdrant"),
				server.NewLLMPinger(chatModel, getEnvOrDefault("MODEL_PROVIDER", "ollama")),
			}

			srv, err := server.New(stack.Controller, gen, stack.Blobs, &server.Config{
				Host:     host,
				Port:     port,
				Logger:   log,
				Pingers:  pingers,
				APIKey:   os.Getenv("STUDYOWL_API_KEY"),
				Registry: reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
