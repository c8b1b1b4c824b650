package cli

import (
	"github.com/spf13/cobra"
)

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "submit <orders.json>",
		Short:        "Submit a batch of orders and print one result per order",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			envs, err := readBatch(args[0])
			if err != nil {
				return err
			}
			resp, err := newClient(rootOpts).SubmitBatch(cmd.Context(), envs)
			if err != nil {
				return err
			}

			out := &OutputFormatter{Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return out.JSON(resp)
			}
			rows := make([][]string, 0, len(resp.Results))
			for _, r := range resp.Results {
				rows = append(rows, []string{r.ExternalOrderID, r.InstanceID, string(r.Outcome), r.ExternalDocNumber, r.Message})
			}
			return out.Table([]string{"ORDER", "INSTANCE", "OUTCOME", "DOC", "MESSAGE"}, rows)
		},
	}
}
