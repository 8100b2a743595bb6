// Command gatewayd is the gateway daemon entry point: parse flags, load the
// configuration descriptor, build the gateway and its admin/HTTP surfaces,
// wait for a signal, and shut everything down in reverse order.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/edgegateway/internal/adminapi"
	"github.com/kartikbazzad/edgegateway/internal/descriptor"
	"github.com/kartikbazzad/edgegateway/internal/gateway"
	httpsrv "github.com/kartikbazzad/edgegateway/internal/http"
	"github.com/kartikbazzad/edgegateway/internal/obslog"

	_ "github.com/kartikbazzad/edgegateway/modules/hello"
	_ "github.com/kartikbazzad/edgegateway/modules/identitymap"
	_ "github.com/kartikbazzad/edgegateway/modules/logsink"
)

var (
	configPath  string
	adminSocket string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "Edge gateway daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to descriptor file (optional)")
	rootCmd.Flags().StringVar(&adminSocket, "admin-socket", "", "Admin Unix socket path (overrides descriptor)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides descriptor)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	desc, err := descriptor.Load(configPath)
	if err != nil {
		return fmt.Errorf("gatewayd: load descriptor: %w", err)
	}
	if adminSocket != "" {
		desc.AdminSocket = adminSocket
	}
	if logLevel != "" {
		desc.LogLevel = logLevel
	}

	log := obslog.New(os.Stderr, obslog.ParseLevel(desc.LogLevel), "[gatewayd]")
	log.Info("starting edge gateway")
	log.Info("admin socket", "path", desc.AdminSocket)

	entries, err := desc.ToGatewayEntries()
	if err != nil {
		return fmt.Errorf("gatewayd: build entries: %w", err)
	}

	gw, err := gateway.Create(entries, log)
	if err != nil {
		return fmt.Errorf("gatewayd: create gateway: %w", err)
	}

	admin := adminapi.NewServer(gw, log)
	for _, inst := range gw.Instances() {
		admin.Track(inst.Path, inst.Handle)
	}
	if err := admin.Start(desc.AdminSocket); err != nil {
		gw.Destroy()
		return fmt.Errorf("gatewayd: start admin api: %w", err)
	}

	var httpServer *httpsrv.Server
	if desc.HTTPEnabled {
		httpServer = httpsrv.NewServer(desc.HTTPAddr, desc.HTTPReadTimeout, log)
		go func() {
			if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	if httpServer != nil {
		_ = httpServer.Stop()
	}
	_ = admin.Stop()
	gw.Destroy()
	log.Info("edge gateway stopped")
	return nil
}
