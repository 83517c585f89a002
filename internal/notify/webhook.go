package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{"event":{{ toJson . }}}`

// WebhookNotifier sends pipeline failure events to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *httpPoster
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, "application/json", defaultTiming),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if err := n.poster.waitForRateLimit(ctx, event.Service); err != nil {
		return err
	}

	var payload strings.Builder
	if err := n.template.Execute(&payload, event); err != nil {
		return fmt.Errorf("render webhook payload: %w", err)
	}

	if err := n.poster.postWithRetry(ctx, []byte(payload.String())); err != nil {
		return err
	}

	n.logger.Debug().
		Str("service", event.Service).
		Str("stage", event.Stage).
		Msg("webhook notification sent")

	return nil
}
