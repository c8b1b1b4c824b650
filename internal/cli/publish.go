package cli

import (
	"fmt"

	"orderbridge/internal/adapters/kafka"

	"github.com/spf13/cobra"
)

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		brokers string
		topic   string
		key     string
	)
	cmd := &cobra.Command{
		Use:          "publish <orders.json>",
		Short:        "Publish a batch of orders to the Kafka intake topic",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			envs, err := readBatch(args[0])
			if err != nil {
				return err
			}
			if topic == "" {
				return fmt.Errorf("--topic is required")
			}
			w, err := kafka.NewWriter(kafka.ParseBrokers(brokers), topic)
			if err != nil {
				return fmt.Errorf("--brokers: %w", err)
			}
			defer w.Close()

			msgKey := key
			if msgKey == "" {
				msgKey = envs[0].Key().String()
			}
			if err := kafka.PublishBatch(cmd.Context(), w, msgKey, kafka.Batch{Orders: envs}); err != nil {
				return err
			}

			out := &OutputFormatter{Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return out.JSON(map[string]any{"topic": topic, "key": msgKey, "orders": len(envs)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d orders to %s (key %s)\n", len(envs), topic, msgKey)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&brokers, "brokers", envOr("KAFKA_BROKERS", ""), "comma-separated Kafka brokers")
	f.StringVar(&topic, "topic", envOr("KAFKA_TOPIC", ""), "intake topic")
	f.StringVar(&key, "key", "", "message key (defaults to the first order key)")
	return cmd
}
