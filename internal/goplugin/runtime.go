// Package goplugin is the default interfaces.PluginRuntime: it resolves a
// filesystem path to a Go plugin (.so, built with `go build -buildmode
// plugin`) and looks up an exported Package symbol implementing
// interfaces.PluginPackage.
package goplugin

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/kestrelio/ipcbridge/internal/interfaces"
)

// SymbolName is the exported variable name every plugin .so must declare:
//
//	var Package myPackage
//
// where myPackage implements interfaces.PluginPackage.
const SymbolName = "Package"

// Runtime implements interfaces.PluginRuntime on top of the standard
// library's plugin package. There is no third-party alternative for
// loading Go-native .so plugins; the plugin package is the only mechanism
// the toolchain exposes for this, so Runtime is one of the few places in
// this module built directly on the standard library.
type Runtime struct {
	mu     sync.Mutex
	opened map[string]*plugin.Plugin
}

// New returns an empty Runtime.
func New() *Runtime {
	return &Runtime{opened: make(map[string]*plugin.Plugin)}
}

// LoadPlugin implements interfaces.PluginRuntime.
func (r *Runtime) LoadPlugin(path string) (interfaces.PluginPackage, error) {
	r.mu.Lock()
	p, ok := r.opened[path]
	r.mu.Unlock()

	if !ok {
		var err error
		p, err = plugin.Open(path)
		if err != nil {
			return nil, fmt.Errorf("goplugin: open %s: %w", path, err)
		}
		r.mu.Lock()
		r.opened[path] = p
		r.mu.Unlock()
	}

	sym, err := p.Lookup(SymbolName)
	if err != nil {
		return nil, fmt.Errorf("goplugin: lookup %s in %s: %w", SymbolName, path, err)
	}
	pkg, ok := sym.(interfaces.PluginPackage)
	if !ok {
		return nil, fmt.Errorf("goplugin: %s in %s does not implement PluginPackage", SymbolName, path)
	}
	return pkg, nil
}

var _ interfaces.PluginRuntime = (*Runtime)(nil)
