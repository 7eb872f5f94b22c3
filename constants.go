package ipcbridge

import "github.com/kestrelio/ipcbridge/internal/constants"

// Re-exported defaults for callers configuring a Host or Client.
const (
	DefaultHeartbeatInterval = constants.DefaultHeartbeatInterval
	DefaultHeartbeatTimeout  = constants.DefaultHeartbeatTimeout
	DefaultMaxMessageSize    = constants.DefaultMaxMessageSize
	DefaultMaxMessages       = constants.DefaultMaxMessages
	ProtocolVersion          = constants.ProtocolVersion
	MaxNestedDepth           = constants.MaxNestedDepth
)
