package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <file>...",
	Short: "Publish batch files to the NATS ingest subject",
	Long:  `Send each namespace batch as its own message so that running servers ingest it through their queue consumer.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	batches, err := readBatches(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	rt, err := loadRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.NATS == nil {
		return fmt.Errorf("nats.url is not configured")
	}

	subject := rt.Config.NATS.IngestSubject
	for _, b := range batches {
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		if err := rt.NATS.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish %s: %w", b.Namespace, err)
		}
	}
	if err := rt.NATS.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %d batch(es) to %s\n", len(batches), subject)
	return nil
}
