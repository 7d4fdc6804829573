package config

import "sync"

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

// ServerConfig covers the HTTP listener and the sqlite database shared by the
// server and the workers.
type ServerConfig struct {
	Addr   string
	DBPath string
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()
		serverConfig = &ServerConfig{
			Addr:   getenv("HTTP_ADDR", ":8080"),
			DBPath: getenv("STORYLOOM_DB", "data/storyloom.db"),
		}
	})
	return serverConfig
}
