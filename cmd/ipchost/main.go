// Command ipchost runs the host side of the IPC substrate: it accepts
// plugin-child connections, publishes objects into the remote object
// registry, and serves calls until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kestrelio/ipcbridge"
	"github.com/kestrelio/ipcbridge/internal/goplugin"
	"github.com/kestrelio/ipcbridge/internal/logging"
)

var (
	hostID        string
	peerID        string
	controlPeerID string
	shmPoolSizeMB int
	pluginDir     string
	verbose       bool
	cfgFile       string
)

var rootCmd = &cobra.Command{
	Use:   "ipchost",
	Short: "Run an ipcbridge host process",
	Long: `ipchost accepts one plugin-child connection, completes the
handshake, and serves method calls against the objects it publishes until
interrupted with Ctrl+C.

Send SIGUSR1 to dump goroutine stacks for diagnostics.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runHost,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, flags and env only)")
	rootCmd.Flags().StringVar(&hostID, "host-id", "ipchost", "identity this process advertises on the transport layer")
	rootCmd.Flags().StringVar(&peerID, "peer-id", "plugin", "identity of the single plugin-child peer to accept")
	rootCmd.Flags().StringVar(&controlPeerID, "control-peer-id", "ipcctl", "identity of the ipcctl control peer to accept alongside the plugin-child; empty disables it")
	rootCmd.Flags().IntVar(&shmPoolSizeMB, "shm-pool-mb", 16, "shared memory pool size in MiB")
	rootCmd.Flags().StringVar(&pluginDir, "plugin", "", "path to a Go plugin (.so) to load, enabling the plugin loader")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	viper.SetEnvPrefix("IPCHOST")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runHost(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}

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

	params := ipcbridge.HostParams{
		HostID:      viper.GetString("host-id"),
		ShmPoolSize: viper.GetInt("shm-pool-mb") << 20,
	}
	if p := viper.GetString("plugin"); p != "" {
		params.PluginRuntime = goplugin.New()
	}

	host, err := ipcbridge.NewHost(params, opts)
	if err != nil {
		return fmt.Errorf("creating host: %w", err)
	}
	if p := viper.GetString("plugin"); p != "" {
		if _, err := host.Plugins().LoadPlugin(p); err != nil {
			return fmt.Errorf("loading plugin %q: %w", p, err)
		}
		if err := host.Plugins().RegisterPluginObjects(p); err != nil {
			return fmt.Errorf("publishing plugin %q: %w", p, err)
		}
	}

	logger.Info("host created", "host_id", params.HostID, "shm_pool_mb", params.ShmPoolSize>>20)

	acceptErrCh := make(chan error, 1)
	var sessionID uint16
	go func() {
		id, err := host.AcceptPeer(viper.GetString("peer-id"))
		sessionID = id
		acceptErrCh <- err
	}()

	if cp := viper.GetString("control-peer-id"); cp != "" {
		go acceptControlPeer(host, logger, cp)
	}

	installStackDumpHandler(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- host.Serve(ctx) }()

	select {
	case err := <-acceptErrCh:
		if err != nil {
			cancel()
			return fmt.Errorf("accepting peer: %w", err)
		}
		logger.Info("peer connected", "peer_id", peerID, "session_id", sessionID)
	case <-time.After(30 * time.Second):
		cancel()
		return fmt.Errorf("timed out waiting for peer %q to connect", peerID)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("ipchost %s listening for %s; press Ctrl+C to stop\n", params.HostID, peerID)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-serveDone:
		if err != nil {
			logger.Error("serve error", "error", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := host.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}
	logger.Info("host stopped")
	return nil
}

// acceptControlPeer opens the ipcctl control transport pair and completes
// its handshake in the background; unlike the plugin-child peer this is
// best-effort and not waited on at startup, since an operator tool may
// never connect during a given run.
func acceptControlPeer(host *ipcbridge.Host, logger *logging.Logger, ctlPeerID string) {
	if _, err := host.AcceptPeer(ctlPeerID); err != nil {
		logger.Error("control peer accept failed", "peer_id", ctlPeerID, "error", err)
	}
}

func installStackDumpHandler(logger *logging.Logger) {
	stackCh := make(chan os.Signal, 1)
	signal.Notify(stackCh, syscall.SIGUSR1)
	go func() {
		for range stackCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
			logger.Info("stack trace dumped to stderr")
		}
	}()
}
