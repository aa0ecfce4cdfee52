package config

import (
	"time"

	"github.com/gyaneshwarpardhi/subway/internal/fare"
)

// AppConfig is the top-level YAML structure.
type AppConfig struct {
	Server  ServerConf  `yaml:"server"`
	Store   StoreConf   `yaml:"store"`
	Log     LogConf     `yaml:"log"`
	Routing RoutingConf `yaml:"routing"`
	Network NetworkConf `yaml:"network"`
}

// ServerConf holds HTTP listener settings.
type ServerConf struct {
	Addr           string `yaml:"addr" validate:"required"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms" validate:"gte=0"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms" validate:"gte=0"`
	IdleTimeoutMs  int    `yaml:"idle_timeout_ms" validate:"gte=0"`
}

func (s ServerConf) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

func (s ServerConf) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

func (s ServerConf) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMs) * time.Millisecond
}

// StoreConf locates the badger directory. An empty path keeps everything in memory.
type StoreConf struct {
	Path string `yaml:"path"`
}

type LogConf struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type RoutingConf struct {
	// CacheSize bounds the route cache. Zero means the default, negative disables it.
	CacheSize int `yaml:"cache_size" validate:"gte=-1"`
}

// NetworkConf lists the train lines seeded into the store at startup and on reload.
type NetworkConf struct {
	Lines []LineConf `yaml:"lines" validate:"dive"`
}

// LineConf is one train line. Stations are listed in travel order.
type LineConf struct {
	Name     string   `yaml:"name" validate:"required"`
	Fare     float64  `yaml:"fare" validate:"gte=0"`
	Stations []string `yaml:"stations" validate:"required,min=1,dive,required"`
}

// FareCents converts the configured fare to integer cents.
func (l LineConf) FareCents() (int64, error) {
	return fare.ToCents(l.Fare)
}
