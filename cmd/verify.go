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
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// verifyCommands returns the `verify` command. It prints the chain report for a tenant and
// exits non-zero when the chain is broken.
func verifyCommands(c *cashbookInstance) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "verify the hash chain of a tenant's cash book",
		Run: func(cmd *cobra.Command, args []string) {
			if tenantID == "" {
				log.Fatal("--tenant is required")
			}

			result, err := c.cashbook.VerifyChain(context.Background(), tenantID)
			if err != nil {
				log.Fatalf("Error verifying chain: %v", err)
			}

			data, err := json.MarshalIndent(result, "", "    ")
			if err != nil {
				log.Fatalf("Error printing report: %v", err)
			}
			fmt.Println(string(data))

			if !result.IsValid {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant whose chain is verified")
	return cmd
}
