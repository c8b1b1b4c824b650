// Package cli implements orderctl, the operator tool for orderbridge.
package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	APIKey  string
	Timeout time.Duration
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the orderctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "Operate an orderbridge deployment",
		Long:          "Fingerprint, submit and inspect sale orders, seed master data and publish batches to Kafka.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Server, "server", envOr("ORDERBRIDGE_URL", "http://localhost:8080"), "orderbridge HTTP base URL")
	flags.StringVar(&opts.APIKey, "api-key", envOr("ORDERBRIDGE_API_KEY", ""), "API key sent as X-API-Key")
	flags.DurationVar(&opts.Timeout, "timeout", 60*time.Second, "request timeout")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewFingerprintCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))

	return cmd
}
