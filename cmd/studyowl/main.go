// Command studyowl is the entry point for the StudyOwl document processing
// and study-aid service. It provides a CLI interface (via Cobra) and an HTTP
// server exposing the processing pipeline and generation endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/studyowl/studyowl-go/cmd/studyowl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
