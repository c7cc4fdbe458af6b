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
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/cashbook/config"
	"github.com/blnkfinance/cashbook/database/memory"
	"github.com/blnkfinance/cashbook/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookURL = "https://hooks.example.com/cashbook"

func webhookConfig(redisAddr string) *config.Configuration {
	return &config.Configuration{
		DataSource: config.DataSourceConfig{Dns: config.MEMORY_DATA_SOURCE_DNS},
		Redis:      config.RedisConfig{Dns: redisAddr},
		Cashbook:   config.CashbookConfig{Timezone: "Europe/Berlin", LockTimeoutSec: 5, LockWaitSec: 1},
		Notification: config.Notification{Webhook: config.WebhookConfig{
			Url:     testWebhookURL,
			Headers: map[string]string{"X-Cashbook-Signature": "secret"},
		}},
	}
}

func fastWebhookRetries(t *testing.T) {
	original := webhookBackoff
	webhookBackoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	t.Cleanup(func() { webhookBackoff = original })
}

func TestSendWebhook_Enqueues(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config.MockConfig(webhookConfig(mr.Addr()))
	c, err := NewCashbook(memory.NewStore())
	require.NoError(t, err)
	defer c.Close()
	c.now = (&testClock{now: testNow}).Now

	record(t, c, "2024-06-01", model.DocumentTypeIncome, "10.00")

	assert.Contains(t, mr.Keys(), "asynq:{"+WEBHOOK_QUEUE+"}:pending")
}

func TestSendWebhook_NoWebhookURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	conf := webhookConfig(mr.Addr())
	conf.Notification.Webhook.Url = ""
	config.MockConfig(conf)
	c, err := NewCashbook(memory.NewStore())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SendWebhook(NewWebhook{Event: EventEntryRecorded, Payload: map[string]string{"id": "cbe_1"}}))
	assert.NotContains(t, mr.Keys(), "asynq:{"+WEBHOOK_QUEUE+"}:pending")
}

func webhookTask(t *testing.T, event string, payload interface{}) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(NewWebhook{Event: event, Payload: payload})
	require.NoError(t, err)
	return asynq.NewTask(WEBHOOK_QUEUE, data)
}

func TestProcessWebhook_Delivers(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	config.MockConfig(webhookConfig(""))

	var received NewWebhook
	var signature string
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, func(req *http.Request) (*http.Response, error) {
		signature = req.Header.Get("X-Cashbook-Signature")
		if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
	})

	err := ProcessWebhook(context.Background(), webhookTask(t, EventEntryRecorded, map[string]string{"id": "cbe_1"}))
	require.NoError(t, err)

	assert.Equal(t, EventEntryRecorded, received.Event)
	assert.Equal(t, map[string]interface{}{"id": "cbe_1"}, received.Payload)
	assert.Equal(t, "secret", signature)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestProcessWebhook_RetriesServerErrors(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	fastWebhookRetries(t)
	config.MockConfig(webhookConfig(""))

	attempts := 0
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts < 3 {
			return httpmock.NewStringResponse(http.StatusBadGateway, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
	})

	err := ProcessWebhook(context.Background(), webhookTask(t, EventClosingFinalized, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestProcessWebhook_GivesUpAfterRetries(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	fastWebhookRetries(t)
	config.MockConfig(webhookConfig(""))

	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

	err := ProcessWebhook(context.Background(), webhookTask(t, EventChainBroken, nil))
	require.Error(t, err)
	// left to asynq to retry the task later
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestProcessWebhook_ClientErrorSkipsRetry(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	fastWebhookRetries(t)
	config.MockConfig(webhookConfig(""))

	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"bad"}`))

	err := ProcessWebhook(context.Background(), webhookTask(t, EventEntryCancelled, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestProcessWebhook_InvalidPayload(t *testing.T) {
	config.MockConfig(webhookConfig(""))

	err := ProcessWebhook(context.Background(), asynq.NewTask(WEBHOOK_QUEUE, []byte("{not json")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
