package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// configCommands prints the effective configuration after env overrides and defaults.
// The server secret is masked.
func configCommands(c *cashbookInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective cashbook configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := *c.cnf
			if cfg.Server.SecretKey != "" {
				cfg.Server.SecretKey = "********"
			}

			data, err := json.MarshalIndent(cfg, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
