// Package config provides loading and environment overlay for sherlockd's
// runtime configuration: data directory, HTTP listen address, storage
// backend, and fsync durability.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/sherlockd.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
