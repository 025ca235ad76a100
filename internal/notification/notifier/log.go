// Package notifier holds delivery adapters for the notification worker.
package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log. It is the
// delivery adapter used when no message broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient, templateID string, vars map[string]string) error {
	args := []any{"recipient", recipient, "template_id", templateID}
	for k, v := range vars {
		if k == "token" {
			v = "[redacted]"
		}
		args = append(args, "var_"+k, v)
	}
	n.logger.InfoContext(ctx, "notification sent", args...)
	return nil
}
