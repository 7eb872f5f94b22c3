package pluginloader

import "errors"

var (
	ErrPluginNotLoaded = errors.New("pluginloader: plugin not loaded")
	ErrPluginBusy      = errors.New("pluginloader: plugin cannot be unloaded now")
	ErrFeatureNotFound = errors.New("pluginloader: feature not found")
	ErrNoInterface     = errors.New("pluginloader: object does not implement requested interface")
)
