package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Pranav24205/lydia/internal/dispatch"
	"github.com/Pranav24205/lydia/internal/queue"
	"github.com/Pranav24205/lydia/internal/supervisor"
)

func newDispatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run the dispatcher: poll Telegram and enqueue update batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			api, err := telegramFromViper(cmd)
			if err != nil {
				return err
			}
			me, err := api.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("verify bot token: %w", err)
			}
			logger.Info("bot_identified", "username", me.Username, "id", me.ID)

			qc, err := queue.Connect(ctx, queueConfigFromViper(), logger)
			if err != nil {
				return err
			}
			defer qc.Close()

			sup := supervisor.New(logger)
			workers := flagOrViperInt(cmd, "workers", "broker.max_workers")
			if workers > 0 {
				proc, err := processorFromViper(logger, api, me)
				if err != nil {
					return err
				}
				qc.RegisterHandler(dispatch.TaskProcessBatch, batchHandler(proc))
				sup.Restart(ctx, "workers", workers, func(ctx context.Context, worker int) error {
					return qc.Run(ctx)
				})
			}

			loop := &dispatch.Loop{
				Source:      api,
				Queue:       qc,
				Logger:      logger,
				PollTimeout: flagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout"),
			}
			err = loop.Run(ctx)
			sup.Wait()
			return err
		},
	}

	cmd.Flags().String("bot-token", "", "Telegram bot token.")
	cmd.Flags().Duration("poll-timeout", 0, "Long-poll timeout for getUpdates.")
	cmd.Flags().Int("workers", 0, "Embedded worker goroutines (0 runs the dispatcher alone).")
	return cmd
}
