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
	"fmt"
	"log"
	"os"

	_ "time/tzdata"

	"github.com/blnkfinance/cashbook"
	"github.com/blnkfinance/cashbook/config"
	"github.com/blnkfinance/cashbook/database"
	"github.com/blnkfinance/cashbook/database/memory"
	"github.com/blnkfinance/cashbook/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CashbookCLI wraps the root cobra command.
type CashbookCLI struct {
	cmd *cobra.Command
}

// cashbookInstance holds the service and configuration built in preRun, shared by all commands.
type cashbookInstance struct {
	cashbook *cashbook.Cashbook
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file and builds the service before any command runs.
func preRun(app *cashbookInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newCashbook, err := setupCashbook(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.cashbook = newCashbook
		app.cnf = cnf
		return nil
	}
}

// setupCashbook connects the configured store. "memory://" selects the in-process store,
// anything else is treated as a Postgres DSN.
func setupCashbook(cfg *config.Configuration) (*cashbook.Cashbook, error) {
	var db database.IDataSource
	if cfg.DataSource.InMemory() {
		logrus.Warn("using the in-memory store, entries are lost on shutdown")
		db = memory.NewStore()
	} else {
		ds, err := database.NewDataSource(cfg)
		if err != nil {
			return nil, fmt.Errorf("error getting datasource: %v", err)
		}
		db = ds
	}

	newCashbook, err := cashbook.NewCashbook(db)
	if err != nil {
		return nil, fmt.Errorf("error creating cashbook: %v", err)
	}
	return newCashbook, nil
}

// NewCLI builds the root command and registers the subcommands.
func NewCLI() *CashbookCLI {
	var configFile string
	c := &cashbookInstance{}

	var rootCmd = &cobra.Command{
		Use:   "cashbook",
		Short: "GoBD compliant cash book",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./cashbook.json", "Configuration file for the cashbook")
	rootCmd.PersistentPreRunE = preRun(c, &configFile)

	rootCmd.AddCommand(serverCommands(c))
	rootCmd.AddCommand(workerCommands(c))
	rootCmd.AddCommand(migrateCommands(c))
	rootCmd.AddCommand(verifyCommands(c))
	rootCmd.AddCommand(configCommands(c))

	return &CashbookCLI{cmd: rootCmd}
}

func (w CashbookCLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
