// Package ipcbridge is a cross-process IPC substrate for host/plugin-child
// automation frameworks: a Host accepts plugin connections over paired
// message queues, publishes objects through a remote object registry, and
// forwards calls between peers through per-connection run-loops; a Client
// drives the same protocol from the plugin-child side.
//
// A minimal host:
//
//	h, err := ipcbridge.NewHost(ipcbridge.HostParams{HostID: "myhost"}, ipcbridge.Options{})
//	if err != nil { ... }
//	sessionID, err := h.AcceptPeer("plugin-1")
//	...
//	h.Shutdown(context.Background())
//
// and the matching plugin-child:
//
//	c, err := ipcbridge.NewClient(ipcbridge.ClientParams{HostID: "myhost", PeerID: "plugin-1", PID: pid, PluginName: "example-plugin"}, ipcbridge.Options{})
//	if err != nil { ... }
//	if err := c.Connect(); err != nil { ... }
//	defer c.Close()
package ipcbridge
