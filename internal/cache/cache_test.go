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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	setValue := map[string]string{"status": "finalized"}
	require.NoError(t, c.Set(ctx, "closing:tenant_1:cls_1", setValue, 10*time.Minute))
	assert.True(t, mr.Exists("closing:tenant_1:cls_1"))

	var getValue map[string]string
	require.NoError(t, c.Get(ctx, "closing:tenant_1:cls_1", &getValue))
	assert.Equal(t, setValue, getValue)
}

func TestGetNonExistentKey(t *testing.T) {
	c, _ := newTestCache(t)

	var getValue map[string]string
	err := c.Get(context.Background(), "nonExistentKey", &getValue)
	assert.NoError(t, err)
	assert.Empty(t, getValue)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "testKey", true, 10*time.Minute))
	require.NoError(t, c.Delete(ctx, "testKey"))
	assert.False(t, mr.Exists("testKey"))

	var getValue bool
	require.NoError(t, c.Get(ctx, "testKey", &getValue))
	assert.False(t, getValue)

	assert.NoError(t, c.Delete(ctx, "nonExistentKey"))
}
