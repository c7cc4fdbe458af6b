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
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/cashbook/config"
	"github.com/blnkfinance/cashbook/database"
	"github.com/blnkfinance/cashbook/database/memory"
	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/blnkfinance/cashbook/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant_1"

// 12:00 in Berlin
var testNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func newTestCashbook(t *testing.T, ds database.IDataSource) *Cashbook {
	t.Helper()
	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: config.MEMORY_DATA_SOURCE_DNS},
		Cashbook:   config.CashbookConfig{Timezone: "Europe/Berlin", LockTimeoutSec: 5, LockWaitSec: 1},
	})
	c, err := NewCashbook(ds)
	require.NoError(t, err)
	clock := &testClock{now: testNow}
	c.now = clock.Now
	return c
}

func newMemoryCashbook(t *testing.T) (*Cashbook, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return newTestCashbook(t, store), store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func record(t *testing.T, c *Cashbook, date string, docType model.DocumentType, amount string) *model.Entry {
	t.Helper()
	entry, err := c.RecordEntry(context.Background(), RecordEntryRequest{
		TenantID:     testTenant,
		EntryDate:    day(date),
		DocumentType: docType,
		Amount:       dec(amount),
		Description:  gofakeit.Sentence(4),
		CreatedBy:    "user_1",
		Force:        true,
	})
	require.NoError(t, err)
	return entry
}

func assertCode(t *testing.T, err error, code apierror.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apierror.Is(err, code), "want %s, got %v", code, err)
}

func TestNewCashbook_WithoutRedis(t *testing.T) {
	c, _ := newMemoryCashbook(t)

	assert.Nil(t, c.redis)
	assert.Nil(t, c.queue)
	assert.Equal(t, "Europe/Berlin", c.Location().String())
	assert.Equal(t, 5*time.Second, c.lockTimeout)
	assert.NoError(t, c.SendWebhook(NewWebhook{Event: EventEntryRecorded}))
	assert.NoError(t, c.Close())
}

func TestNewCashbook_WithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: config.MEMORY_DATA_SOURCE_DNS},
		Redis:      config.RedisConfig{Dns: mr.Addr()},
		Cashbook:   config.CashbookConfig{Timezone: "Europe/Berlin", LockTimeoutSec: 5, LockWaitSec: 1},
	})
	c, err := NewCashbook(memory.NewStore())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.redis)
	assert.NotNil(t, c.queue)
}

func TestNewCashbook_ConfigNotLoaded(t *testing.T) {
	config.ConfigStore.Store((*config.Configuration)(nil))
	_, err := NewCashbook(memory.NewStore())
	assert.Error(t, err)
}

func TestWithTenantLock_ReleasesLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: config.MEMORY_DATA_SOURCE_DNS},
		Redis:      config.RedisConfig{Dns: mr.Addr()},
		Cashbook:   config.CashbookConfig{Timezone: "Europe/Berlin", LockTimeoutSec: 5, LockWaitSec: 1},
	})
	c, err := NewCashbook(memory.NewStore())
	require.NoError(t, err)
	defer c.Close()
	c.now = (&testClock{now: testNow}).Now

	var insideHeld bool
	err = c.withTenantLock(context.Background(), testTenant, func() error {
		insideHeld = mr.Exists("cashbook:chain-lock:" + testTenant)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, insideHeld)
	assert.False(t, mr.Exists("cashbook:chain-lock:"+testTenant))

	record(t, c, "2024-06-01", model.DocumentTypeIncome, "10.00")
	assert.False(t, mr.Exists("cashbook:chain-lock:"+testTenant))
}

func TestWithTenantLock_Busy(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: config.MEMORY_DATA_SOURCE_DNS},
		Redis:      config.RedisConfig{Dns: mr.Addr()},
		Cashbook:   config.CashbookConfig{Timezone: "Europe/Berlin", LockTimeoutSec: 5, LockWaitSec: 1},
	})
	c, err := NewCashbook(memory.NewStore())
	require.NoError(t, err)
	defer c.Close()
	c.lockWait = 200 * time.Millisecond

	require.NoError(t, mr.Set("cashbook:chain-lock:"+testTenant, "someone-else"))

	called := false
	err = c.withTenantLock(context.Background(), testTenant, func() error {
		called = true
		return nil
	})
	assertCode(t, err, apierror.ErrConflict)
	assert.False(t, called)
}
