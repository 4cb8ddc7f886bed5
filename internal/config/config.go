// Package config loads the microblog demo application's configuration.
package config

// ServerSection contains HTTP server configuration.
type ServerSection struct {
	// ListenAddr is the address the HTTP server binds, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the address the Prometheus endpoint binds. Empty
	// disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// StoreSection contains persistence configuration.
type StoreSection struct {
	// DataDir is the directory for the embedded database files.
	// Ignored when InMemory is true.
	DataDir string `yaml:"data_dir"`

	// InMemory keeps all data in RAM. Useful for demos and tests.
	InMemory bool `yaml:"in_memory"`
}

// FileConfig represents a microblog configuration file.
type FileConfig struct {
	// Version is the config file format version (optional, currently always 1).
	Version int `yaml:"version,omitempty"`

	Server ServerSection `yaml:"server"`
	Store  StoreSection  `yaml:"store"`
}

// applyDefaults fills unset fields with usable defaults.
func applyDefaults(cfg *FileConfig) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Store.DataDir == "" && !cfg.Store.InMemory {
		cfg.Store.DataDir = "data"
	}
}
