package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel         string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	TCPPort          string   `yaml:"tcp-port" env:"TCP_PORT" env-default:"6969"`
	WSPort           string   `yaml:"ws-port" env:"WS_PORT" env-default:""`
	WSOriginPatterns []string `yaml:"ws-origin-patterns" env:"WS_ORIGIN_PATTERNS" env-separator:","`
	HTTPPort         string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Session          Session  `yaml:"session" env-prefix:"SESSION_"`
	Archive          Archive  `yaml:"archive" env-prefix:"ARCHIVE_"`
	Redis            Redis    `yaml:"redis" env-prefix:"REDIS_"`
}

type Session struct {
	BroadcastBuffer int `yaml:"broadcast-buffer" env:"BROADCAST_BUFFER" env-default:"16"`
	RequestQueue    int `yaml:"request-queue" env:"REQUEST_QUEUE" env-default:"64"`
}

type Archive struct {
	Enabled   bool `yaml:"enabled" env:"ENABLED" env-default:"false"`
	QueueSize int  `yaml:"queue-size" env:"QUEUE_SIZE" env-default:"32"`
}

type Redis struct {
	Host string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"PORT" env-default:"6379"`
}

// MustLoad - load all configurations from the yaml file at path, or from the environment alone when
// there is no such file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err = cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	default:
		if err = cleanenv.ReadConfig(path, config); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
