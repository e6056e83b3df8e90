package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashwinyue/chat-insight/internal/service/ingest"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete blank messages once",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	cleaner := rt.Services.Cleaner
	if cleaner == nil {
		cleaner = ingest.NewCleaner(rt.Services.Store, rt.Config.Cleanup.Cron)
	}
	n, err := cleaner.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d blank message(s)\n", n)
	return nil
}
