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

	"github.com/blnkfinance/cashbook"
	"github.com/blnkfinance/cashbook/database"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: cashbook.SQLFiles,
		Root:       "sql",
	}
}

// migrateCommands groups the schema migration subcommands.
func migrateCommands(c *cashbookInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run cashbook schema migrations",
	}

	cmd.AddCommand(migrateRunCommand(c, "up", migrate.Up))
	cmd.AddCommand(migrateRunCommand(c, "down", migrate.Down))

	return cmd
}

func migrateRunCommand(c *cashbookInstance, use string, direction migrate.MigrationDirection) *cobra.Command {
	cmd := &cobra.Command{
		Use: use,
		Run: func(cmd *cobra.Command, args []string) {
			if c.cnf.DataSource.InMemory() {
				log.Println("The in-memory store has no schema to migrate")
				return
			}

			db, err := database.ConnectDB(c.cnf.DataSource)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			migrate.SetTable("cashbook_migrations")

			n, err := migrate.Exec(db, "postgres", migrationSource(), direction)
			if err != nil {
				log.Printf("Error migrating %s: %v", use, err)
				return
			}
			fmt.Printf("Applied %d migrations (%s)!\n", n, use)
		},
	}

	return cmd
}
