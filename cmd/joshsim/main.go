// Command joshsim runs and validates Josh simulations: a demonstration
// ecology scenario wired through the substep engine, with optional
// Prometheus metrics and live snapshot streaming.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "joshsim",
		Short: "Josh geospatial agent-based simulation engine",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())

	if err := root.Execute(); err != nil {
		log.Printf("joshsim: %v", err)
		os.Exit(1)
	}
}
