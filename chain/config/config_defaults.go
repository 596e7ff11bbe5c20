package config

import "github.com/rs/zerolog"

// DefaultProjectConfig obtains a default configuration for a project. It does not fork, caches in memory, and
// logs at info level.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Fork: ForkConfig{
			RpcUrl:       "",
			RpcBlock:     0,
			RpcBlockHash: "",
			PoolSize:     20,
		},
		Cache: CacheConfig{
			Persistent: false,
			Directory:  "",
		},
		Logging: LoggingConfig{
			Level:        zerolog.InfoLevel,
			LogDirectory: "",
			NoColor:      false,
		},
	}
}
