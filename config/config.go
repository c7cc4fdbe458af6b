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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT            = "5001"
	DEFAULT_MONITORING_PORT = "5004"
	DEFAULT_TIMEZONE        = "Europe/Berlin"
	DEFAULT_CURRENCY        = "EUR"
	DEFAULT_LOCK_TIMEOUT    = 30
	DEFAULT_LOCK_WAIT       = 10
	MEMORY_DATA_SOURCE_DNS  = "memory://"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"CASHBOOK_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"CASHBOOK_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CASHBOOK_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"CASHBOOK_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"CASHBOOK_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"CASHBOOK_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns             string        `json:"dns" envconfig:"CASHBOOK_DATA_SOURCE_DNS"`
	MaxOpenConns    int           `json:"max_open_conns" envconfig:"CASHBOOK_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" envconfig:"CASHBOOK_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" envconfig:"CASHBOOK_DATA_SOURCE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" envconfig:"CASHBOOK_DATA_SOURCE_CONN_MAX_IDLE_TIME"`
}

// InMemory reports whether the in-process store was selected.
func (d DataSourceConfig) InMemory() bool {
	return d.Dns == MEMORY_DATA_SOURCE_DNS
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"CASHBOOK_REDIS_DNS"`
}

// QueueConfig configures the webhook workers.
type QueueConfig struct {
	MonitoringPort string `json:"monitoring_port" envconfig:"CASHBOOK_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CASHBOOK_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CASHBOOK_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CASHBOOK_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"CASHBOOK_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"CASHBOOK_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type TelemetryConfig struct {
	Enabled      bool   `json:"enable_telemetry" envconfig:"CASHBOOK_ENABLE_TELEMETRY"`
	OtlpEndpoint string `json:"otlp_endpoint" envconfig:"CASHBOOK_OTLP_ENDPOINT"`
}

// CashbookConfig holds the bookkeeping settings shared by every tenant.
type CashbookConfig struct {
	Timezone       string `json:"timezone" envconfig:"CASHBOOK_TIMEZONE"`
	Currency       string `json:"currency" envconfig:"CASHBOOK_CURRENCY"`
	LockTimeoutSec int    `json:"lock_timeout_sec" envconfig:"CASHBOOK_LOCK_TIMEOUT_SEC"`
	LockWaitSec    int    `json:"lock_wait_sec" envconfig:"CASHBOOK_LOCK_WAIT_SEC"`
}

// Location resolves the configured time zone, falling back to UTC.
func (c CashbookConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c CashbookConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSec) * time.Second
}

func (c CashbookConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitSec) * time.Second
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"CASHBOOK_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Telemetry    TelemetryConfig  `json:"telemetry"`
	Cashbook     CashbookConfig   `json:"cashbook"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("cashbook", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok || c == nil {
		return nil, errors.New("config not loaded from file. Create a json file called cashbook.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Cashbook Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Queue.MonitoringPort = strings.TrimSpace(cnf.Queue.MonitoringPort)
	cnf.Cashbook.Timezone = strings.TrimSpace(cnf.Cashbook.Timezone)

	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Tenant write lock and webhooks are disabled.")
	}

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	if cnf.Server.Secure && cnf.Server.SecretKey == "" {
		return errors.New("secret key is required when server.secure is enabled")
	}

	if cnf.DataSource.MaxOpenConns == 0 {
		cnf.DataSource.MaxOpenConns = 25
	}
	if cnf.DataSource.MaxIdleConns == 0 {
		cnf.DataSource.MaxIdleConns = 10
	}
	if cnf.DataSource.ConnMaxLifetime == 0 {
		cnf.DataSource.ConnMaxLifetime = 30 * time.Minute
	}
	if cnf.DataSource.ConnMaxIdleTime == 0 {
		cnf.DataSource.ConnMaxIdleTime = 5 * time.Minute
	}

	if cnf.Cashbook.Timezone == "" {
		cnf.Cashbook.Timezone = DEFAULT_TIMEZONE
	}
	if _, err := time.LoadLocation(cnf.Cashbook.Timezone); err != nil {
		return fmt.Errorf("invalid cashbook timezone %q: %w", cnf.Cashbook.Timezone, err)
	}
	if cnf.Cashbook.Currency == "" {
		cnf.Cashbook.Currency = DEFAULT_CURRENCY
	}
	if cnf.Cashbook.LockTimeoutSec <= 0 {
		cnf.Cashbook.LockTimeoutSec = DEFAULT_LOCK_TIMEOUT
	}
	if cnf.Cashbook.LockWaitSec <= 0 {
		cnf.Cashbook.LockWaitSec = DEFAULT_LOCK_WAIT
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
		log.Printf("Warning: Rate limit cleanup interval not specified. Setting default value: %d seconds", defaultCleanup)
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
