package cli

import (
	"time"

	"orderbridge/internal/orders"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "status <externalOrderId> <instanceId>",
		Short:        "Show the ledger entry of one order key",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := orders.Key{ExternalOrderID: args[0], InstanceID: args[1]}
			resp, err := newClient(rootOpts).Status(cmd.Context(), key)
			if err != nil {
				return err
			}

			out := &OutputFormatter{Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return out.JSON(resp)
			}
			return out.Table([]string{"FIELD", "VALUE"}, [][]string{
				{"order", resp.ExternalOrderID},
				{"instance", resp.InstanceID},
				{"status", resp.Status},
				{"hash", resp.PayloadHash},
				{"doc_entry", resp.ExternalDocID},
				{"doc_number", resp.ExternalDocNumber},
				{"error", resp.ErrorMessage},
				{"updated_at", resp.UpdatedAt.Format(time.RFC3339)},
			})
		},
	}
}
