// Command ipcplugin runs the plugin-child side of the IPC substrate: it
// connects to a running host, completes the handshake, and blocks until
// interrupted, exposing whatever objects its own process has published.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kestrelio/ipcbridge"
	"github.com/kestrelio/ipcbridge/internal/logging"
)

var (
	hostID     string
	peerID     string
	pluginName string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ipcplugin",
	Short: "Connect to an ipcbridge host as a plugin-child process",
	Long: `ipcplugin connects to a host process identified by --host-id,
completes the handshake as --peer-id, and stays connected (answering
method calls and sending heartbeats) until interrupted with Ctrl+C.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPlugin,
}

func init() {
	rootCmd.Flags().StringVar(&hostID, "host-id", "ipchost", "host process identity to connect to")
	rootCmd.Flags().StringVar(&peerID, "peer-id", "plugin", "this process's identity on the transport layer")
	rootCmd.Flags().StringVar(&pluginName, "name", "ipcplugin", "plugin name carried in the hello handshake")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	viper.SetEnvPrefix("IPCPLUGIN")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runPlugin(cmd *cobra.Command, args []string) error {
	logLevel := logging.LevelInfo
	if viper.GetBool("verbose") {
		logLevel = logging.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{Level: logLevel, Development: true})
	logging.SetDefault(logger)

	opts := ipcbridge.Options{
		Logger:     logger,
		Registerer: prometheus.DefaultRegisterer,
	}

	client, err := ipcbridge.NewClient(ipcbridge.ClientParams{
		HostID:     viper.GetString("host-id"),
		PeerID:     viper.GetString("peer-id"),
		PID:        uint32(os.Getpid()),
		PluginName: viper.GetString("name"),
	}, opts)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	logger.Info("connecting", "host_id", hostID, "peer_id", peerID)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to host: %w", err)
	}
	logger.Info("connected", "session_id", client.SessionID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	fmt.Printf("ipcplugin %q connected to %q as session %d; press Ctrl+C to stop\n",
		pluginName, hostID, client.SessionID())
	<-sigCh

	logger.Info("shutdown signal received")
	shutdownStart := time.Now()
	if err := client.Close(); err != nil {
		logger.Error("close error", "error", err)
		return err
	}
	logger.Info("client closed", "duration", time.Since(shutdownStart))
	return nil
}
