// Command ipcctl is an operator-facing CLI for introspecting a running
// ipcbridge host: its published registry, its connected sessions, and its
// loaded plugins.
package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kestrelio/ipcbridge"
)

var (
	hostID string
	peerID string
)

var rootCmd = &cobra.Command{
	Use:           "ipcctl",
	Short:         "Inspect a running ipcbridge host",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var registryCmd = &cobra.Command{Use: "registry", Short: "Inspect the remote object registry"}
var sessionCmd = &cobra.Command{Use: "session", Short: "Inspect connected peer sessions"}
var pluginCmd = &cobra.Command{Use: "plugin", Short: "Inspect loaded plugins"}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every published remote object",
	RunE:  runRegistryList,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every connected peer session",
	RunE:  runSessionList,
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every loaded plugin path",
	RunE:  runPluginList,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hostID, "host-id", "ipchost", "host process identity to connect to")
	rootCmd.PersistentFlags().StringVar(&peerID, "peer-id", "ipcctl", "control peer identity; must match the host's --control-peer-id")

	registryCmd.AddCommand(registryListCmd)
	sessionCmd.AddCommand(sessionListCmd)
	pluginCmd.AddCommand(pluginListCmd)
	rootCmd.AddCommand(registryCmd, sessionCmd, pluginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// connectControl opens a throwaway client connection to the host purely
// to call the control object; it is closed before the command returns.
// The host must be running with --control-peer-id matching peerID (the
// host only ever opens one transport pair per peer id, so ipcctl and the
// real plugin-child must use distinct ids).
func connectControl() (*ipcbridge.Client, error) {
	client, err := ipcbridge.NewClient(ipcbridge.ClientParams{
		HostID:     hostID,
		PeerID:     peerID,
		PID:        uint32(os.Getpid()),
		PluginName: "ipcctl",
	}, ipcbridge.Options{})
	if err != nil {
		return nil, fmt.Errorf("creating control client: %w", err)
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to host %q: %w", hostID, err)
	}
	return client, nil
}

func runRegistryList(cmd *cobra.Command, args []string) error {
	client, err := connectControl()
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := client.ListRegistry()
	if err != nil {
		return fmt.Errorf("listing registry: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Object ID", "Interface ID", "Name", "Version", "Session"})
	for _, e := range entries {
		table.Append([]string{
			e.ObjectID,
			fmt.Sprintf("%d", e.InterfaceID),
			e.Name,
			fmt.Sprintf("%d", e.Version),
			fmt.Sprintf("%d", e.SessionID),
		})
	}
	table.Render()
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	client, err := connectControl()
	if err != nil {
		return err
	}
	defer client.Close()

	sessions, err := client.ListSessions()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Session ID", "PID", "Plugin Name", "Ready"})
	for _, s := range sessions {
		table.Append([]string{
			fmt.Sprintf("%d", s.SessionID),
			fmt.Sprintf("%d", s.PID),
			s.PluginName,
			fmt.Sprintf("%t", s.Ready),
		})
	}
	table.Render()
	return nil
}

func runPluginList(cmd *cobra.Command, args []string) error {
	client, err := connectControl()
	if err != nil {
		return err
	}
	defer client.Close()

	paths, err := client.ListPlugins()
	if err != nil {
		return fmt.Errorf("listing plugins: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Plugin Path"})
	for _, p := range paths {
		table.Append([]string{p})
	}
	table.Render()
	return nil
}
