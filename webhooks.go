/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cashbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/cashbook/config"
	"github.com/blnkfinance/cashbook/internal/request"
	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	EventEntryRecorded    = "entry.recorded"
	EventEntryCancelled   = "entry.cancelled"
	EventClosingDrafted   = "closing.drafted"
	EventClosingFinalized = "closing.finalized"
	EventChainBroken      = "chain.broken"
)

// NewWebhook represents the structure of a webhook notification.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// webhookBackoff is the retry policy for one delivery attempt by a worker.
var webhookBackoff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// SendWebhook enqueues a webhook notification. It is a no-op unless both redis and a
// webhook URL are configured.
func (c *Cashbook) SendWebhook(newWebhook NewWebhook) error {
	if c.queue == nil {
		return nil
	}
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	payload, err := json.Marshal(newWebhook)
	if err != nil {
		return err
	}
	if _, err := c.queue.enqueueWebhook(payload); err != nil {
		return err
	}
	return nil
}

// emit sends a webhook after a committed write. Failures are logged and never undo the write.
func (c *Cashbook) emit(event string, payload interface{}) {
	if err := c.SendWebhook(NewWebhook{Event: event, Payload: payload}); err != nil {
		logrus.WithField("event", event).Error("failed to enqueue webhook: ", err)
	}
}

// deliverWebhook posts data to the receiver, retrying network failures and 5XX/429 answers.
func deliverWebhook(ctx context.Context, hook config.WebhookConfig, data NewWebhook) error {
	operation := func() error {
		_, err := request.PostJSON(ctx, hook.Url, hook.Headers, data, nil)
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(webhookBackoff(), ctx))
}

// ProcessWebhook processes a webhook notification task from the queue.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid webhook payload: %v: %w", err, asynq.SkipRetry)
	}

	logrus.WithField("event", payload.Event).Info("delivering webhook")
	if err := deliverWebhook(ctx, conf.Notification.Webhook, payload); err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return fmt.Errorf("webhook rejected: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}
