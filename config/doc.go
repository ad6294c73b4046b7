// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files. It supports configuration for server
// settings, database file storage locations, query execution limits, and
// session cleanup behavior.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Lab timeout: %s\n", cfg.GetLabTimeout())
package config
