// Package pluginloader implements the plugin package loader: it loads a
// dynamic plugin package through a language-runtime abstraction, enumerates
// the features the package exposes, and publishes each feature's root
// object into the remote object registry under a fixed name.
package pluginloader

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelio/ipcbridge/internal/interfaces"
	"github.com/kestrelio/ipcbridge/internal/logging"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/kestrelio/ipcbridge/internal/registry"
)

// Feature enumerates the fixed capability slots a plugin package may
// expose, in the original's DasPluginFeature order — EnumFeature indices
// are stable across implementations because this ordering is.
type Feature uint8

const (
	FeatureCaptureFactory Feature = iota
	FeatureErrorLens
	FeatureTask
	FeatureInputFactory
	FeatureComponentFactory
)

var featureNames = map[Feature]string{
	FeatureCaptureFactory:   "CAPTURE_FACTORY",
	FeatureErrorLens:        "ERROR_LENS",
	FeatureTask:             "TASK",
	FeatureInputFactory:     "INPUT_FACTORY",
	FeatureComponentFactory: "COMPONENT_FACTORY",
}

// featureIIDs fixes one interface guid per feature slot, generated once
// and pinned here so every loader in this protocol derives the same
// interface_id from the same feature — analogous to DasIidOf<T>() always
// returning the same compiled-in guid for T in the original.
var featureIIDs = map[Feature]uuid.UUID{
	FeatureCaptureFactory:   uuid.MustParse("8f1a9b2c-3d4e-4f5a-9b6c-1d2e3f4a5b6c"),
	FeatureErrorLens:        uuid.MustParse("2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d6e"),
	FeatureTask:             uuid.MustParse("9a0b1c2d-3e4f-4a5b-8c9d-0e1f2a3b4c5d"),
	FeatureInputFactory:     uuid.MustParse("4d5e6f7a-8b9c-4d0e-9f1a-2b3c4d5e6f7a"),
	FeatureComponentFactory: uuid.MustParse("7a8b9c0d-1e2f-4a3b-8c4d-5e6f7a8b9c0d"),
}

// Name returns the feature's fixed enumerator spelling ("CAPTURE_FACTORY",
// ...), or "UNKNOWN" for an out-of-table value.
func (f Feature) Name() string {
	if n, ok := featureNames[f]; ok {
		return n
	}
	return "UNKNOWN"
}

// IID returns the feature's fixed interface guid, or the zero guid for an
// out-of-table value.
func (f Feature) IID() uuid.UUID {
	return featureIIDs[f]
}

// FeatureInfo records one published feature: its fixed name/guid, the
// interface object the package created for it (nil if creation failed),
// and, once RegisterPluginObjects runs, the ObjectId it was published
// under.
type FeatureInfo struct {
	Feature     Feature
	Name        string
	IID         uuid.UUID
	InterfaceID uint32
	Interface   any
	ObjectID    objectid.ID
	SessionID   uint16
	PluginName  string
}

type loadedPlugin struct {
	path     string
	pkg      interfaces.PluginPackage
	features []FeatureInfo
}

// Loader is the plugin package loader. The zero value is not ready; use
// New.
type Loader struct {
	mu         sync.Mutex
	sessionID  uint16
	runtime    interfaces.PluginRuntime
	registry   *registry.Registry
	loaded     map[string]*loadedPlugin
	featureMap map[string]*FeatureInfo
	logger     interfaces.Logger
}

// New returns a Loader publishing feature objects under sessionID,
// loading packages through runtime, and registering them in reg.
func New(sessionID uint16, runtime interfaces.PluginRuntime, reg *registry.Registry) *Loader {
	return &Loader{
		sessionID:  sessionID,
		runtime:    runtime,
		registry:   reg,
		loaded:     make(map[string]*loadedPlugin),
		featureMap: make(map[string]*FeatureInfo),
		logger:     logging.Default(),
	}
}

func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// LoadPlugin loads the package at path, enumerates its features, and
// creates each feature's root object, but does not publish them yet —
// RegisterPluginObjects does that separately. Returns alreadyLoaded=true
// (the S_FALSE-equivalent outcome) without reloading if path is already
// loaded.
func (l *Loader) LoadPlugin(path string) (alreadyLoaded bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := normalizePath(path)
	if _, ok := l.loaded[key]; ok {
		return true, nil
	}

	pkg, err := l.runtime.LoadPlugin(key)
	if err != nil {
		return false, err
	}

	plugin := &loadedPlugin{path: key, pkg: pkg}
	pluginName := filepath.Base(key)

	for index := 0; ; index++ {
		rawFeature, ok := pkg.EnumFeature(index)
		if !ok {
			break
		}
		feature := Feature(rawFeature)

		info := FeatureInfo{
			Feature:     feature,
			Name:        feature.Name(),
			IID:         feature.IID(),
			InterfaceID: registry.ComputeInterfaceID(feature.IID()),
			SessionID:   l.sessionID,
			PluginName:  pluginName,
		}

		iface, createErr := pkg.CreateFeatureInterface(index)
		if createErr != nil {
			l.logger.Printf("pluginloader: feature %s creation failed for %s: %v", info.Name, key, createErr)
		} else {
			info.Interface = iface
		}

		plugin.features = append(plugin.features, info)
	}

	l.loaded[key] = plugin
	return false, nil
}

// RegisterPluginObjects allocates an ObjectId and registers the remote
// object registry entry for every feature of path that has a non-nil
// interface, skipping (not aborting on) any feature whose interface
// creation failed earlier.
func (l *Loader) RegisterPluginObjects(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	plugin, ok := l.loaded[normalizePath(path)]
	if !ok {
		return ErrPluginNotLoaded
	}

	var localID uint32 = 1
	for i := range plugin.features {
		f := &plugin.features[i]
		if f.Interface == nil {
			continue
		}

		id := objectid.ID{SessionID: l.sessionID, Generation: 1, LocalID: localID}
		localID++

		_, err := l.registry.Register(id, f.IID, l.sessionID, f.Name, 1, registry.RegisterOptions{InterfaceID: f.InterfaceID})
		if err != nil {
			l.logger.Printf("pluginloader: failed to register feature %s: %v", f.Name, err)
			continue
		}

		f.ObjectID = id
		l.featureMap[f.Name] = f
	}
	return nil
}

// UnregisterPluginObjects removes every registered feature of path from
// the registry and the feature name index, without unloading the plugin
// itself.
func (l *Loader) UnregisterPluginObjects(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	plugin, ok := l.loaded[normalizePath(path)]
	if !ok {
		return ErrPluginNotLoaded
	}

	for i := range plugin.features {
		f := &plugin.features[i]
		if !f.ObjectID.IsNull() {
			l.registry.Unregister(f.ObjectID)
			f.ObjectID = objectid.ID{}
		}
		delete(l.featureMap, f.Name)
	}
	return nil
}

// UnloadPlugin unregisters path's objects and drops it from the loaded
// set, refusing with ErrPluginBusy if the package reports it cannot be
// unloaded right now.
func (l *Loader) UnloadPlugin(path string) error {
	key := normalizePath(path)

	l.mu.Lock()
	plugin, ok := l.loaded[key]
	if !ok {
		l.mu.Unlock()
		return ErrPluginNotLoaded
	}
	canUnload := plugin.pkg == nil || plugin.pkg.CanUnloadNow()
	l.mu.Unlock()

	if !canUnload {
		return ErrPluginBusy
	}

	if err := l.UnregisterPluginObjects(key); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.loaded, key)
	l.mu.Unlock()
	return nil
}

// GetObjectByFeature resolves a published feature by name and narrows it
// to iid through the plugin-supplied query primitive.
func (l *Loader) GetObjectByFeature(name string, iid uuid.UUID) (any, error) {
	l.mu.Lock()
	f, ok := l.featureMap[name]
	l.mu.Unlock()
	if !ok || f.Interface == nil {
		return nil, ErrFeatureNotFound
	}

	queryable, ok := f.Interface.(interfaces.QueryInterfacer)
	if !ok {
		return nil, ErrNoInterface
	}
	obj, err := queryable.QueryInterface([16]byte(iid))
	if err != nil {
		return nil, ErrNoInterface
	}
	return obj, nil
}

// AllFeatures returns the names of every currently published feature.
func (l *Loader) AllFeatures() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.featureMap))
	for name := range l.featureMap {
		out = append(out, name)
	}
	return out
}

// PluginFeatures returns a snapshot of every feature path's package
// enumerated, published or not.
func (l *Loader) PluginFeatures(path string) ([]FeatureInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	plugin, ok := l.loaded[normalizePath(path)]
	if !ok {
		return nil, ErrPluginNotLoaded
	}
	out := make([]FeatureInfo, len(plugin.features))
	copy(out, plugin.features)
	return out, nil
}

// IsPluginLoaded reports whether path is currently loaded.
func (l *Loader) IsPluginLoaded(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.loaded[normalizePath(path)]
	return ok
}

// LoadedPluginCount returns how many plugins are currently loaded.
func (l *Loader) LoadedPluginCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loaded)
}

// LoadedPluginPaths returns the normalized path of every loaded plugin.
func (l *Loader) LoadedPluginPaths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.loaded))
	for path := range l.loaded {
		out = append(out, path)
	}
	return out
}

// Shutdown unregisters every loaded plugin's objects and clears the
// loader's state.
func (l *Loader) Shutdown() {
	l.mu.Lock()
	paths := make([]string, 0, len(l.loaded))
	for path := range l.loaded {
		paths = append(paths, path)
	}
	l.mu.Unlock()

	for _, path := range paths {
		_ = l.UnregisterPluginObjects(path)
	}

	l.mu.Lock()
	l.loaded = make(map[string]*loadedPlugin)
	l.featureMap = make(map[string]*FeatureInfo)
	l.mu.Unlock()
}
