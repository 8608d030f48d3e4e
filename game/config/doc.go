// Package config manages the named trial configurations served to players.
//
// Configurations live as files in one directory, one per config ID:
// classic.json, sprint.yaml and so on. JSON and YAML are both accepted and
// durations may be written as Go duration strings or as milliseconds. Every
// file is validated with engine.ValidateConfig before it is cached, and
// invalid files are skipped when listing.
//
// The default configuration is classic if present, otherwise the first valid
// file, otherwise engine.DefaultConfig. Watch keeps the cache in step with
// the directory using fsnotify.
//
// Usage:
//
//	manager, err := config.NewManager("configs", logger)
//	if err != nil {
//		return err
//	}
//	go manager.Watch(ctx)
//
//	cfg, err := manager.LoadConfig("sprint")
//	infos, err := manager.ListConfigs()
package config
