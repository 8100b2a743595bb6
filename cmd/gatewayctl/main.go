// Command gatewayctl is the operator CLI for a running gatewayd: each
// subcommand dials the admin socket through pkg/client, issues one request,
// and prints the result.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/edgegateway/pkg/client"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "Operator CLI for the edge gateway admin API",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "admin-socket", "/tmp/edgegateway-admin.sock", "Admin Unix socket path")
	rootCmd.AddCommand(listCmd(), addCmd(), removeCmd(), topicsCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded module instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(socketPath)
			defer c.Close()
			modules, err := c.ListModules()
			if err != nil {
				return err
			}
			if len(modules) == 0 {
				fmt.Println("no modules loaded")
				return nil
			}
			for _, m := range modules {
				fmt.Printf("%s  %s\n", m.HandleID, m.Path)
			}
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var configJSON string
	cmd := &cobra.Command{
		Use:   "add <module-path>",
		Short: "Load a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := json.RawMessage("{}")
			if configJSON != "" {
				if !json.Valid([]byte(configJSON)) {
					return fmt.Errorf("gatewayctl: --config is not valid JSON")
				}
				config = json.RawMessage(configJSON)
			}
			c := client.New(socketPath)
			defer c.Close()
			handleID, err := c.AddModule(args[0], config)
			if err != nil {
				return err
			}
			fmt.Println(handleID)
			return nil
		},
	}
	cmd.Flags().StringVar(&configJSON, "config", "", "Module config as a JSON object")
	return cmd
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <handle-id>",
		Short: "Unload a module by handle ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(socketPath)
			defer c.Close()
			return c.RemoveModule(args[0])
		},
	}
}

func topicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "Show broker message counters (no named-topic registry exists to list)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(socketPath)
			defer c.Close()
			stats, err := c.BrokerStats()
			if err != nil {
				return err
			}
			fmt.Printf("messages_published  %.0f\n", stats.MessagesPublished)
			fmt.Printf("messages_delivered  %.0f\n", stats.MessagesDelivered)
			fmt.Printf("malformed_dropped   %.0f\n", stats.MalformedDropped)
			fmt.Printf("active_workers      %.0f\n", stats.ActiveWorkers)
			return nil
		},
	}
}
