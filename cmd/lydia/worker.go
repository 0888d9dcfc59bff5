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

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker pool consuming update batches from the job queue",
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

			qc, err := queue.Connect(ctx, queueConfigFromViper(), logger)
			if err != nil {
				return err
			}
			defer qc.Close()

			proc, err := processorFromViper(logger, api, me)
			if err != nil {
				return err
			}
			qc.RegisterHandler(dispatch.TaskProcessBatch, batchHandler(proc))

			workers := flagOrViperInt(cmd, "workers", "broker.max_workers")
			logger.Info("worker_start", "workers", workers, "bot", me.Username)

			sup := supervisor.New(logger)
			sup.Restart(ctx, "workers", workers, func(ctx context.Context, worker int) error {
				return qc.Run(ctx)
			})
			sup.Wait()
			return nil
		},
	}

	cmd.Flags().String("bot-token", "", "Telegram bot token.")
	cmd.Flags().Int("workers", 0, "Worker goroutines consuming the queue.")
	return cmd
}
