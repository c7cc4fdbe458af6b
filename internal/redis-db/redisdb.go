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

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the client used for the tenant write lock and the webhook queue.
type Redis struct {
	address string
	client  redis.UniversalClient
}

// ParseRedisURL turns a configured redis DSN into client options. It accepts docker style
// host:port addresses as well as redis:// and rediss:// URLs, including URLs that carry a bare
// password without the leading colon.
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	if !strings.Contains(rawURL, "//") && !strings.Contains(rawURL, "@") {
		if strings.Count(rawURL, ":") != 1 {
			return nil, fmt.Errorf("invalid redis address %q", rawURL)
		}
		return &redis.Options{Addr: rawURL}, nil
	}

	for _, scheme := range []string{"redis://", "rediss://"} {
		if !strings.HasPrefix(rawURL, scheme) || !strings.Contains(rawURL, "@") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(rawURL, scheme), "@", 2)
		if !strings.Contains(parts[0], ":") {
			rawURL = fmt.Sprintf("%s:%s@%s", scheme, parts[0], parts[1])
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion == 0 {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: opts.TLSConfig.ServerName}
	}
	return opts, nil
}

// NewRedisClient connects to the redis instance at dsn and pings it.
func NewRedisClient(dsn string) (*Redis, error) {
	opts, err := ParseRedisURL(dsn)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{address: opts.Addr, client: client}, nil
}

// Client returns the underlying universal client.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) Address() string {
	return r.address
}
