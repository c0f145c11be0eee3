package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Battle   BattleConfig   `mapstructure:"battle"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Script   ScriptConfig   `mapstructure:"script"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"` // empty disables /api/admin
}

type EngineConfig struct {
	Workers     int           `mapstructure:"workers"`   // 0 = one per CPU
	MaxDepth    int           `mapstructure:"max_depth"` // branch crossings per path
	MaxTurns    int           `mapstructure:"max_turns"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	Parallel    int           `mapstructure:"parallel"` // concurrent evaluations in a batch
	ProgressLog time.Duration `mapstructure:"progress_log"`
}

type BattleConfig struct {
	// DamageFormula is empty for the no-damage policy, "raw" for raw damage,
	// or a formula over a.*, b.* and dmg.*.
	DamageFormula string `mapstructure:"damage_formula"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql | none
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
	BatchSize    int           `mapstructure:"batch_size"`
	FlushEvery   time.Duration `mapstructure:"flush_every"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"` // empty = in-process cache
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	ResultTTL       time.Duration `mapstructure:"result_ttl"`
}

type SecurityConfig struct {
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type ScriptConfig struct {
	VMPoolSize int           `mapstructure:"vm_pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.max_depth", 16)
	v.SetDefault("engine.max_turns", 30)
	v.SetDefault("engine.wait_timeout", "60s")
	v.SetDefault("engine.parallel", 4)
	v.SetDefault("engine.progress_log", "5s")
	v.SetDefault("battle.damage_formula", "")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/battlesim.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("database.batch_size", 50)
	v.SetDefault("database.flush_every", "2s")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.result_ttl", "1h")
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("script.vm_pool_size", 8)
	v.SetDefault("script.timeout", "500ms")
}

// Load reads config from the given YAML file path. BATTLESIM_* environment
// variables override file values (engine.max_depth -> BATTLESIM_ENGINE_MAX_DEPTH).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("battlesim")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in defaults without reading a file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

var envReplacer = strings.NewReplacer(".", "_")
