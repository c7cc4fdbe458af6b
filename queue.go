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
	"errors"

	"github.com/blnkfinance/cashbook/config"
	redis_db "github.com/blnkfinance/cashbook/internal/redis-db"
	"github.com/hibiken/asynq"
)

const (
	WEBHOOK_QUEUE = "new:webhook"

	webhookMaxRetry = 5
)

// Queue wraps the asynq client used to hand webhook deliveries to the workers.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// RedisClientOpt converts the configured redis DSN into asynq connection options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	if conf.Redis.Dns == "" {
		return asynq.RedisClientOpt{}, errors.New("redis is not configured")
	}
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Username:  redisOption.Username,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue initializes a Queue from the configured redis connection.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
	}, nil
}

func (q *Queue) enqueueWebhook(payload []byte) (*asynq.TaskInfo, error) {
	task := asynq.NewTask(WEBHOOK_QUEUE, payload, asynq.Queue(WEBHOOK_QUEUE), asynq.MaxRetry(webhookMaxRetry))
	return q.Client.Enqueue(task)
}

func (q *Queue) Close() error {
	return errors.Join(q.Client.Close(), q.Inspector.Close())
}
