package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Pranav24205/lydia/internal/analytics"
	"github.com/Pranav24205/lydia/internal/clients"
	"github.com/Pranav24205/lydia/internal/coffeehouse"
	"github.com/Pranav24205/lydia/internal/dispatch"
	"github.com/Pranav24205/lydia/internal/processor"
	"github.com/Pranav24205/lydia/internal/queue"
	"github.com/Pranav24205/lydia/internal/statepaths"
	"github.com/Pranav24205/lydia/internal/telegram"
)

func telegramFromViper(cmd *cobra.Command) (*telegram.Client, error) {
	token := strings.TrimSpace(flagOrViperString(cmd, "bot-token", "telegram.bot_token"))
	if token == "" {
		return nil, fmt.Errorf("missing telegram.bot_token")
	}
	return telegram.NewClient(nil, viper.GetString("telegram.api_base"), token), nil
}

func queueConfigFromViper() queue.Config {
	return queue.Config{
		URL:      viper.GetString("broker.url"),
		Exchange: viper.GetString("broker.exchange"),
		Queue:    viper.GetString("broker.queue"),
		Prefetch: viper.GetInt("broker.prefetch"),
	}
}

// processorFromViper assembles the worker-side pipeline around a verified bot
// identity.
func processorFromViper(logger *slog.Logger, api *telegram.Client, me *telegram.User) (*processor.Processor, error) {
	endpoint := strings.TrimSpace(viper.GetString("coffeehouse.endpoint"))
	if endpoint == "" {
		return nil, fmt.Errorf("missing coffeehouse.endpoint")
	}
	chat := coffeehouse.NewClient(nil, endpoint, viper.GetString("coffeehouse.access_key"))

	var metrics analytics.Tallier = analytics.Noop{}
	if ep := strings.TrimSpace(viper.GetString("analytics.endpoint")); ep != "" {
		metrics = analytics.NewClient(nil, ep, logger)
	}

	return &processor.Processor{
		Registry:    clients.NewFileStore(statepaths.ClientsDir()),
		Chat:        chat,
		Replies:     api,
		Metrics:     metrics,
		Logger:      logger,
		BotUsername: me.Username,
		BotName:     me.FirstName,
	}, nil
}

func batchHandler(proc *processor.Processor) queue.Handler {
	return queue.JSONHandler(func(ctx context.Context, b dispatch.Batch) error {
		proc.HandleBatch(ctx, b.Updates)
		return nil
	})
}
