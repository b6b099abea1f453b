/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mycloud-app/mycloud/config"
	"github.com/mycloud-app/mycloud/internal/mq"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect server events on the message broker",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print upload and delete events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("no broker configured, set MQ_BACKEND")
		}
		defer broker.Close()

		out := cmd.OutOrStdout()
		err = broker.SubscribeEvents(ctx, func(_ context.Context, ev mq.Event) error {
			line := fmt.Sprintf("%s  %-14s user=%d actor=%d", ev.At.Local().Format(time.DateTime), ev.Type, ev.UserID, ev.ActorID)
			if ev.FileID != 0 {
				line += fmt.Sprintf(" file=%d %q", ev.FileID, ev.FileName)
			}
			fmt.Fprintln(out, line)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
