package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/spf13/cobra"
)

var identity string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect one report and send it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newApp(cfg)
		defer a.close()

		report, err := a.runner.Run(ctx, identity)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"run_id":   report.RunID,
			"videos":   len(report.Videos),
			"errors":   report.Errors.Len(),
			"warnings": len(report.Warnings),
		}).Info("Report delivered")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&identity, "identity", "i", "", "Name shown in the report header")
}
