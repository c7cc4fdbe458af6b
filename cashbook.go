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
	"embed"
	"errors"
	"time"

	"github.com/blnkfinance/cashbook/config"
	"github.com/blnkfinance/cashbook/database"
	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/internal/cache"
	redlock "github.com/blnkfinance/cashbook/internal/lock"
	"github.com/blnkfinance/cashbook/internal/notification"
	redis_db "github.com/blnkfinance/cashbook/internal/redis-db"
	"github.com/blnkfinance/cashbook/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Cashbook is the service façade over a tenant's ledger: it records and cancels entries,
// runs monthly closings and verifies the hash chain.
type Cashbook struct {
	datasource  database.IDataSource
	redis       redis.UniversalClient
	queue       *Queue
	cache       cache.Cache
	loc         *time.Location
	lockTimeout time.Duration
	lockWait    time.Duration
	now         func() time.Time
}

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("cashbook")

// NewCashbook builds the service on top of db using the loaded configuration.
// Redis is optional; without it writes rely on the store's row locks alone and no
// webhooks are queued.
func NewCashbook(db database.IDataSource) (*Cashbook, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	c := &Cashbook{
		datasource:  db,
		loc:         configuration.Cashbook.Location(),
		lockTimeout: configuration.Cashbook.LockTimeout(),
		lockWait:    configuration.Cashbook.LockWait(),
		now:         time.Now,
	}

	if configuration.Redis.Dns != "" {
		redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
		if err != nil {
			return nil, err
		}
		queue, err := NewQueue(configuration)
		if err != nil {
			return nil, err
		}
		c.redis = redisClient.Client()
		c.queue = queue
		c.cache = cache.NewRedisCache(c.redis)
		notification.RegisterWebhookSender(func(event string, payload interface{}) error {
			return c.SendWebhook(NewWebhook{Event: event, Payload: payload})
		})
	}
	return c, nil
}

// Location is the time zone calendar dates are resolved in.
func (c *Cashbook) Location() *time.Location {
	return c.loc
}

// Close releases the queue and redis connections.
func (c *Cashbook) Close() error {
	var errs []error
	if c.queue != nil {
		errs = append(errs, c.queue.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	return errors.Join(errs...)
}

// today is the current calendar date in the configured time zone.
func (c *Cashbook) today() time.Time {
	return model.TruncateDate(c.now(), c.loc)
}

// calendarDate keeps the calendar date of t as given by the caller.
func calendarDate(t time.Time) time.Time {
	return model.TruncateDate(t, t.Location())
}

// withTenantLock serializes fn against other writers of the tenant when redis is configured.
// The store's chain head lock stays authoritative either way.
func (c *Cashbook) withTenantLock(ctx context.Context, tenantID string, fn func() error) error {
	if c.redis == nil {
		return fn()
	}

	locker := redlock.NewTenantLocker(c.redis, tenantID)
	if err := locker.WaitLock(ctx, c.lockTimeout, c.lockWait); err != nil {
		return apierror.NewAPIError(apierror.ErrConflict, "Cashbook is busy with another write, retry the request", err)
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithField("tenant_id", tenantID).Warn(err)
		}
	}()
	return fn()
}

// notifyError reports infrastructure failures to the operators.
var notifyError = notification.NotifyError

// logAndRecordError records err on the span and logs it. Internal server errors are also
// forwarded to the configured notification channels.
func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	if apierror.Is(err, apierror.ErrInternalServer) {
		notifyError(err)
	}
	return err
}
