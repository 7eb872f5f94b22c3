// Package interfaces holds the small cross-cutting interfaces shared
// between internal packages, kept separate from the public API to avoid
// import cycles.
package interfaces

// Logger is the minimal printf-shaped logging contract components accept
// so call sites don't need to import internal/logging directly.
type Logger interface {
	Printf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Observer receives call-level telemetry; implementations must be
// thread-safe since the run-loop invokes them from its receive goroutine
// and from arbitrary caller goroutines concurrently.
type Observer interface {
	ObserveCall(interfaceID, methodID uint32, latencyNs uint64, errorCode int32)
	ObservePendingCalls(n int)
	ObserveHeartbeatMiss(sessionID uint16)
}

// PluginPackage is the consumed-collaborator contract a loaded plugin
// package must satisfy (spec §6.4): the loader makes no further
// assumptions about a returned object's ABI beyond QueryInterface.
type PluginPackage interface {
	// EnumFeature returns the feature enumerator at index, or ok=false
	// once index runs past the last published feature.
	EnumFeature(index int) (feature int, ok bool)
	// CreateFeatureInterface materializes the root object for the
	// feature at index.
	CreateFeatureInterface(index int) (any, error)
	// CanUnloadNow reports whether the package has no outstanding
	// references and may be safely unloaded.
	CanUnloadNow() bool
}

// QueryInterfacer is implemented by any object the loader or a stub hands
// back to a caller that needs to narrow it to a specific interface id.
type QueryInterfacer interface {
	QueryInterface(iid [16]byte) (any, error)
}

// PluginRuntime materializes a plugin package from a filesystem path. It
// is the pluggable language back-end referenced by spec §9 — the loader
// itself is language-agnostic.
type PluginRuntime interface {
	LoadPlugin(path string) (PluginPackage, error)
}
