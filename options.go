package ipcbridge

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/interfaces"
)

// Logger is the logging contract a Host or Client accepts for diagnostic
// output; *internal/logging.Logger satisfies it, and so does any
// caller-supplied printf-shaped adapter.
type Logger = interfaces.Logger

// Options configures a Host or Client. The zero value is valid; every
// field defaults as documented.
type Options struct {
	// Context is the parent for the instance's internal lifetime. Nil
	// uses context.Background().
	Context context.Context

	// Logger receives diagnostic output. Nil disables logging.
	Logger Logger

	// Registerer receives the instance's Prometheus collectors. Nil uses
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// MaxMessageSize bounds the inline transport frame body before the
	// shared memory pool escape kicks in. Zero uses DefaultMaxMessageSize.
	MaxMessageSize uint32

	// HeartbeatInterval and HeartbeatTimeout override the handshake
	// heartbeat timing. Zero uses the package defaults.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = constants.DefaultMaxMessageSize
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}
	if o.HeartbeatTimeout == 0 {
		o.HeartbeatTimeout = constants.DefaultHeartbeatTimeout
	}
	return o
}
