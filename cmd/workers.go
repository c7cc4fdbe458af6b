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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/blnkfinance/cashbook"
	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func initializeWorkerServer(c *cashbookInstance) (*asynq.Server, error) {
	redisOption, err := cashbook.RedisClientOpt(c.cnf)
	if err != nil {
		return nil, err
	}

	return asynq.NewServer(
		redisOption,
		asynq.Config{
			Concurrency: 2,
			Queues:      map[string]int{cashbook.WEBHOOK_QUEUE: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logrus.WithFields(logrus.Fields{
					"task":    task.Type(),
					"retried": retried,
				}).Warn("webhook delivery failed: ", err)
			}),
		},
	), nil
}

// monitoringHandler serves the asynqmon dashboard for the webhook queue under /monitoring.
func monitoringHandler(c *cashbookInstance) (http.Handler, error) {
	redisOption, err := cashbook.RedisClientOpt(c.cnf)
	if err != nil {
		return nil, err
	}
	return asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	}), nil
}

// workerCommands returns the `workers` command delivering queued webhooks.
func workerCommands(c *cashbookInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start cashbook workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			shutdown, err := initializeTracing(ctx, c.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(c)
			if err != nil {
				log.Fatal("workers need redis: ", err)
			}

			mux := asynq.NewServeMux()
			mux.HandleFunc(cashbook.WEBHOOK_QUEUE, cashbook.ProcessWebhook)

			h, err := monitoringHandler(c)
			if err != nil {
				log.Fatal(err)
			}
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", c.cnf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
