package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Addr is the server `respkit call` and `respkit http` talk to.
	Addr string `env:"RESPKIT_ADDR,default=127.0.0.1:6379"`

	// Protocol is the RESP version to decode, 2 or 3.
	Protocol int `env:"RESPKIT_PROTOCOL,default=3"`

	LogLevel string `env:"RESPKIT_LOG_LEVEL,default=info"`

	// MaxBuf is the reader's idle buffer limit in bytes, negative for unlimited.
	MaxBuf int `env:"RESPKIT_MAX_BUF,default=16384"`

	DebugHTTP bool `env:"RESPKIT_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	return LoadConfigFrom(ctx, envconfig.OsLookuper())
}

// LoadConfigFrom is LoadConfig reading variables from lookuper instead of the
// process environment. Values in .env.local still apply.
func LoadConfigFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}
