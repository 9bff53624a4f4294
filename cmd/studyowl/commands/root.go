// Package commands defines all Cobra CLI commands for the studyowl binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/studyowl/studyowl-go/internal/audit"
	"github.com/studyowl/studyowl-go/internal/config"
	"github.com/studyowl/studyowl-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studyowl",
		Short: "StudyOwl — turn documents into grounded study material",
		Long: `StudyOwl processes documents into an embedded, searchable knowledge base
and generates study material from it: grounded chat answers, multiple-choice
quizzes, and flashcards.

Processing is asynchronous and resumable: uploads return immediately and
clients poll for status while chunks are extracted and embedded in the
background. Partial failures are tolerated — a document with some failed
chunks still completes and remains usable.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.studyowl/config.yaml).
See 'studyowl --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.studyowl/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewProcessCmd(),
		NewAskCmd(),
		NewQuizCmd(),
		NewFlashcardsCmd(),
		NewVersionCmd(),
	)

	return root
}
