package ipcbridge

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelio/ipcbridge/internal/interfaces"
	"github.com/kestrelio/ipcbridge/internal/pluginloader"
)

// MockObject is a trivial interfaces.QueryInterfacer that answers its own
// iid and nothing else. It is the object MockPluginPackage hands back from
// CreateFeatureInterface unless a custom factory is supplied.
type MockObject struct {
	IID uuid.UUID
}

// QueryInterface implements interfaces.QueryInterfacer.
func (o *MockObject) QueryInterface(iid [16]byte) (any, error) {
	if uuid.UUID(iid) != o.IID {
		return nil, NewError("MockObject.QueryInterface", CodeNoInterface, "interface not implemented")
	}
	return o, nil
}

// MockPluginPackage implements interfaces.PluginPackage for tests: it
// enumerates a fixed feature list and creates a MockObject for each, or a
// caller-supplied factory's result when one is installed.
type MockPluginPackage struct {
	mu sync.Mutex

	// Features is the ordered list of feature enumerator values
	// EnumFeature walks through.
	Features []int

	// Factories, keyed by feature index, override the default MockObject
	// creation for that slot. A factory returning an error simulates a
	// feature whose interface creation fails.
	Factories map[int]func() (any, error)

	// Unloadable controls CanUnloadNow's return value.
	Unloadable bool

	// CreateCalls counts CreateFeatureInterface invocations.
	CreateCalls int
}

// NewMockPluginPackage returns a MockPluginPackage exposing features, each
// producing a MockObject whose iid is its own feature guid when no
// Factories override is present.
func NewMockPluginPackage(features ...int) *MockPluginPackage {
	return &MockPluginPackage{Features: features, Unloadable: true, Factories: make(map[int]func() (any, error))}
}

// EnumFeature implements interfaces.PluginPackage.
func (p *MockPluginPackage) EnumFeature(index int) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.Features) {
		return 0, false
	}
	return p.Features[index], true
}

// CreateFeatureInterface implements interfaces.PluginPackage.
func (p *MockPluginPackage) CreateFeatureInterface(index int) (any, error) {
	p.mu.Lock()
	p.CreateCalls++
	factory, hasFactory := p.Factories[index]
	var feature int
	if index >= 0 && index < len(p.Features) {
		feature = p.Features[index]
	}
	p.mu.Unlock()

	if hasFactory {
		return factory()
	}
	return &MockObject{IID: pluginloader.Feature(feature).IID()}, nil
}

// CanUnloadNow implements interfaces.PluginPackage.
func (p *MockPluginPackage) CanUnloadNow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Unloadable
}

// SetUnloadable updates whether CanUnloadNow reports true, e.g. to
// simulate a plugin becoming busy mid-test.
func (p *MockPluginPackage) SetUnloadable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Unloadable = v
}

var _ interfaces.PluginPackage = (*MockPluginPackage)(nil)

// MockPluginRuntime implements interfaces.PluginRuntime for tests: it
// resolves a path to a pre-registered package instead of loading an
// actual dynamic library or subprocess runtime.
type MockPluginRuntime struct {
	mu       sync.Mutex
	packages map[string]interfaces.PluginPackage

	// LoadErr, when set, is returned from every LoadPlugin call instead
	// of resolving packages.
	LoadErr error
}

// NewMockPluginRuntime returns an empty MockPluginRuntime; register
// packages with Register before use.
func NewMockPluginRuntime() *MockPluginRuntime {
	return &MockPluginRuntime{packages: make(map[string]interfaces.PluginPackage)}
}

// Register makes pkg resolve to path for subsequent LoadPlugin calls.
func (r *MockPluginRuntime) Register(path string, pkg interfaces.PluginPackage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[path] = pkg
}

// LoadPlugin implements interfaces.PluginRuntime.
func (r *MockPluginRuntime) LoadPlugin(path string) (interfaces.PluginPackage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LoadErr != nil {
		return nil, r.LoadErr
	}
	pkg, ok := r.packages[path]
	if !ok {
		return nil, NewError("MockPluginRuntime.LoadPlugin", CodeObjectNotFound, "no plugin registered at "+path)
	}
	return pkg, nil
}

var _ interfaces.PluginRuntime = (*MockPluginRuntime)(nil)
