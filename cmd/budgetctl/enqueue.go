package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgetkit/internal/config"
	"budgetkit/internal/ledger"
)

var (
	flagEnqueueFile string
	flagEnqueueUser string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Publish a TOML batch of transactions to the ledger import queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, err := ledger.LoadBatch(flagEnqueueFile)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		client, err := ledger.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue)
		if err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}
		defer client.Close()

		if err := client.Publish(cmd.Context(), ledger.NewImportMessage(flagEnqueueUser, records)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d transactions for user %s on %s\n",
			len(records), flagEnqueueUser, cfg.AMQP.Queue)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVarP(&flagEnqueueFile, "file", "f", "transactions.toml", "Batch file")
	enqueueCmd.Flags().StringVar(&flagEnqueueUser, "user", "", "User ID the batch belongs to")
	_ = enqueueCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(enqueueCmd)
}
