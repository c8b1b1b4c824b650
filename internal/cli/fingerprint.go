package cli

import (
	"fmt"

	"orderbridge/internal/orders"

	"github.com/spf13/cobra"
)

// FingerprintResult is the hash the ledger would record for one order.
type FingerprintResult struct {
	ExternalOrderID string `json:"externalOrderId"`
	InstanceID      string `json:"instanceId"`
	PayloadHash     string `json:"payloadHash"`
	Canonical       string `json:"canonical,omitempty"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	var showCanonical bool
	cmd := &cobra.Command{
		Use:   "fingerprint <orders.json>",
		Short: "Print the payload hash of each order in a file",
		Long: `Compute the content fingerprint orderbridge records in its ledger.

Two submissions with the same key and the same fingerprint are treated as
the same order; a different fingerprint is a conflict.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			envs, err := readBatch(args[0])
			if err != nil {
				return err
			}
			results, err := fingerprintAll(envs, showCanonical)
			if err != nil {
				return err
			}

			out := &OutputFormatter{Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return out.JSON(results)
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.ExternalOrderID, r.InstanceID, r.PayloadHash})
			}
			if err := out.Table([]string{"ORDER", "INSTANCE", "HASH"}, rows); err != nil {
				return err
			}
			if showCanonical {
				for _, r := range results {
					fmt.Fprintln(cmd.OutOrStdout(), r.Canonical)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showCanonical, "canonical", false, "also print the canonical form that is hashed")
	return cmd
}

func fingerprintAll(envs []orders.Envelope, withCanonical bool) ([]FingerprintResult, error) {
	results := make([]FingerprintResult, 0, len(envs))
	for _, env := range envs {
		key := env.Key()
		hash, err := orders.Fingerprint(env.BusinessObject)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		res := FingerprintResult{ExternalOrderID: key.ExternalOrderID, InstanceID: key.InstanceID, PayloadHash: hash}
		if withCanonical {
			canonical, err := orders.CanonicalJSON(env.BusinessObject)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			res.Canonical = string(canonical)
		}
		results = append(results, res)
	}
	return results, nil
}
