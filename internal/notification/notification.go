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

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/blnkfinance/cashbook/config"
	"github.com/blnkfinance/cashbook/internal/request"
	"github.com/sirupsen/logrus"
)

// SystemErrorEvent is the webhook event emitted for infrastructure failures.
const SystemErrorEvent = "system.error"

// WebhookSender delivers an event to the configured webhook receiver.
type WebhookSender func(event string, payload interface{}) error

var (
	senderMu      sync.RWMutex
	webhookSender WebhookSender
)

// RegisterWebhookSender installs the function used to forward system errors as webhooks.
// The root package registers its queue backed sender at start up.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func currentSender() WebhookSender {
	senderMu.RLock()
	defer senderMu.RUnlock()
	return webhookSender
}

func slackMessage(err error, at time.Time) json.RawMessage {
	text, _ := json.Marshal(fmt.Sprintf("*Error:*\n%v", err))
	return json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {"type": "plain_text", "text": "Error From Cashbook 🐞", "emoji": true}
			},
			{
				"type": "section",
				"fields": [{"type": "mrkdwn", "text": %s}]
			},
			{
				"type": "section",
				"fields": [{"type": "mrkdwn", "text": "*Time:*\n%s"}]
			}
		]
	}`, text, at.Format(time.RFC822)))
}

// SlackNotification posts err to the configured Slack webhook.
func SlackNotification(err error) error {
	conf, cfgErr := config.Fetch()
	if cfgErr != nil {
		return cfgErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, postErr := request.PostJSON(ctx, conf.Notification.Slack.WebhookUrl, nil, slackMessage(err, time.Now()), nil)
	return postErr
}

func notify(systemError error) {
	logrus.Error(systemError)

	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}

	if conf.Notification.Slack.WebhookUrl != "" {
		if err := SlackNotification(systemError); err != nil {
			logrus.WithError(err).Warn("slack notification failed")
		}
	}

	if sender := currentSender(); sender != nil {
		payload := map[string]string{"error": systemError.Error(), "time": time.Now().UTC().Format(time.RFC3339)}
		if err := sender(SystemErrorEvent, payload); err != nil {
			logrus.WithError(err).Warn("system error webhook failed")
		}
	}
}

// NotifyError logs systemError and forwards it to Slack and the webhook sender in the background.
func NotifyError(systemError error) {
	go notify(systemError)
}
