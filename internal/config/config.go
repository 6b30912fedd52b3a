package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"thpool/internal/chaos"
	"thpool/internal/logger"
	"thpool/internal/scenario"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName は設定ディレクトリ名
const AppName = "thpool"

// DefaultAddr は状態APIのデフォルトの待ち受けアドレス
const DefaultAddr = ":8080"

// ErrNotFound は設定ファイルが見つからない場合に返る
var ErrNotFound = errors.New("config file not found")

// searchNames は DefaultPath が探すファイル名（優先順）
var searchNames = []string{"config.yaml", "config.yml", "config.json", "config.toml"}

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Pool     PoolConfig     `yaml:"pool" json:"pool" toml:"pool"`
	Workload WorkloadConfig `yaml:"workload" json:"workload" toml:"workload"`
	Chaos    ChaosConfig    `yaml:"chaos" json:"chaos" toml:"chaos"`
	Log      LogConfig      `yaml:"log" json:"log" toml:"log"`
	Server   ServerConfig   `yaml:"server" json:"server" toml:"server"`
}

// PoolConfig はプール設定
// Workers は 0 を指定できるよう未指定と区別する
type PoolConfig struct {
	Name             string `yaml:"name,omitempty" json:"name,omitempty" toml:"name,omitempty"`
	Workers          *int   `yaml:"workers,omitempty" json:"workers,omitempty" toml:"workers,omitempty"`
	QueueCapacity    int    `yaml:"queue_capacity,omitempty" json:"queue_capacity,omitempty" toml:"queue_capacity,omitempty"`
	MaxQueueCapacity int    `yaml:"max_queue_capacity,omitempty" json:"max_queue_capacity,omitempty" toml:"max_queue_capacity,omitempty"`
	InitRetries      int    `yaml:"init_retries,omitempty" json:"init_retries,omitempty" toml:"init_retries,omitempty"`
	RetryDelay       string `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty" toml:"retry_delay,omitempty"`
}

// WorkloadConfig は負荷設定
type WorkloadConfig struct {
	Preset      string `yaml:"preset,omitempty" json:"preset,omitempty" toml:"preset,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	Jobs        int    `yaml:"jobs,omitempty" json:"jobs,omitempty" toml:"jobs,omitempty"`
	Producers   int    `yaml:"producers,omitempty" json:"producers,omitempty" toml:"producers,omitempty"`
	JobDuration string `yaml:"job_duration,omitempty" json:"job_duration,omitempty" toml:"job_duration,omitempty"`
	Announce    bool   `yaml:"announce,omitempty" json:"announce,omitempty" toml:"announce,omitempty"`
}

// ChaosConfig は障害注入設定
type ChaosConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	Ratio       float64  `yaml:"ratio,omitempty" json:"ratio,omitempty" toml:"ratio,omitempty"`
	AttackTypes []string `yaml:"attack_types,omitempty" json:"attack_types,omitempty" toml:"attack_types,omitempty"`
	Delay       string   `yaml:"delay,omitempty" json:"delay,omitempty" toml:"delay,omitempty"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level   string `yaml:"level,omitempty" json:"level,omitempty" toml:"level,omitempty"`
	NoColor bool   `yaml:"no_color,omitempty" json:"no_color,omitempty" toml:"no_color,omitempty"`
}

// ServerConfig は状態API設定
type ServerConfig struct {
	Addr           string `yaml:"addr,omitempty" json:"addr,omitempty" toml:"addr,omitempty"`
	StatusInterval string `yaml:"status_interval,omitempty" json:"status_interval,omitempty" toml:"status_interval,omitempty"`
}

// Default はデフォルト値を埋めた設定を返す
func Default() *FileConfig {
	sc := scenario.DefaultConfig()
	workers := sc.Workers

	return &FileConfig{
		Pool: PoolConfig{
			Name:          sc.Name,
			Workers:       &workers,
			QueueCapacity: sc.QueueCapacity,
			InitRetries:   sc.InitRetries,
			RetryDelay:    sc.RetryDelay.String(),
		},
		Workload: WorkloadConfig{
			Jobs:        sc.Jobs,
			Producers:   sc.Producers,
			JobDuration: sc.JobDuration.String(),
		},
		Chaos: ChaosConfig{
			Ratio:       sc.ChaosRatio,
			AttackTypes: []string{"delay", "panic"},
			Delay:       sc.ChaosDelay.String(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:           DefaultAddr,
			StatusInterval: "1s",
		},
	}
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Save は拡張子に応じた形式で設定を書き出す
func (f *FileConfig) Save(path string) error {
	var buf bytes.Buffer
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(f); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
	case ".json":
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	case ".toml":
		if err := toml.NewEncoder(&buf).Encode(f); err != nil {
			return fmt.Errorf("failed to encode TOML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultPath は XDG 設定ディレクトリから既存の設定ファイルを探す
func DefaultPath() (string, error) {
	for _, name := range searchNames {
		path, err := xdg.SearchConfigFile(filepath.Join(AppName, name))
		if err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// WritablePath は設定ファイルを新規作成する場合のパスを返す
func WritablePath() (string, error) {
	path, err := xdg.ConfigFile(filepath.Join(AppName, searchNames[0]))
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}
	return path, nil
}

// ToScenarioConfig はFileConfigをscenario.Configに変換する
// workload.preset が指定されていればそのプリセットを土台にする
func (f *FileConfig) ToScenarioConfig() (scenario.Config, error) {
	// デフォルト値の設定
	config := scenario.DefaultConfig()
	if name := f.Workload.Preset; name != "" {
		preset, ok := scenario.GetPreset(name)
		if !ok {
			return config, fmt.Errorf("unknown preset: %s", name)
		}
		config = preset
	}

	// Pool設定
	if f.Pool.Name != "" {
		config.Name = f.Pool.Name
	}
	if f.Pool.Workers != nil {
		config.Workers = *f.Pool.Workers
	}
	if f.Pool.QueueCapacity > 0 {
		config.QueueCapacity = f.Pool.QueueCapacity
	}
	if f.Pool.MaxQueueCapacity > 0 {
		config.MaxQueueCapacity = f.Pool.MaxQueueCapacity
	}
	if f.Pool.InitRetries > 0 {
		config.InitRetries = f.Pool.InitRetries
	}
	if f.Pool.RetryDelay != "" {
		d, err := time.ParseDuration(f.Pool.RetryDelay)
		if err != nil {
			return config, fmt.Errorf("invalid retry delay: %w", err)
		}
		config.RetryDelay = d
	}

	// Workload設定
	if f.Workload.Description != "" {
		config.Description = f.Workload.Description
	}
	if f.Workload.Jobs > 0 {
		config.Jobs = f.Workload.Jobs
	}
	if f.Workload.Producers > 0 {
		config.Producers = f.Workload.Producers
	}
	if f.Workload.JobDuration != "" {
		d, err := time.ParseDuration(f.Workload.JobDuration)
		if err != nil {
			return config, fmt.Errorf("invalid job duration: %w", err)
		}
		config.JobDuration = d
	}
	if f.Workload.Announce {
		config.Announce = true
	}

	// Chaos設定
	if f.Chaos.Enabled {
		config.EnableChaos = true
	}
	if f.Chaos.Ratio > 0 {
		config.ChaosRatio = f.Chaos.Ratio
	}
	if len(f.Chaos.AttackTypes) > 0 {
		attacks, err := parseAttackTypes(f.Chaos.AttackTypes)
		if err != nil {
			return config, err
		}
		config.AttackTypes = attacks
	}
	if f.Chaos.Delay != "" {
		d, err := time.ParseDuration(f.Chaos.Delay)
		if err != nil {
			return config, fmt.Errorf("invalid chaos delay: %w", err)
		}
		config.ChaosDelay = d
	}

	return config, nil
}

// parseAttackTypes は文字列の攻撃タイプをパースする
func parseAttackTypes(types []string) ([]chaos.AttackType, error) {
	var attacks []chaos.AttackType

	for _, t := range types {
		attack, ok := chaos.ParseAttackType(strings.ToLower(t))
		if !ok {
			return nil, fmt.Errorf("unknown attack type: %s", t)
		}
		attacks = append(attacks, attack)
	}

	return attacks, nil
}

// LogLevel はログレベルを返す（未指定は Info）
func (f *FileConfig) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(f.Log.Level)
}

// ServerAddr は待ち受けアドレスを返す
func (f *FileConfig) ServerAddr() string {
	if f.Server.Addr == "" {
		return DefaultAddr
	}
	return f.Server.Addr
}

// StatusInterval は状態配信の間隔を返す（未指定は1秒）
func (f *FileConfig) StatusInterval() (time.Duration, error) {
	if f.Server.StatusInterval == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(f.Server.StatusInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid status interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("server.status_interval must be positive")
	}
	return d, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	if f.Pool.Workers != nil && *f.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must be non-negative")
	}

	if f.Pool.QueueCapacity < 0 || f.Pool.MaxQueueCapacity < 0 {
		return fmt.Errorf("pool queue capacities must be non-negative")
	}

	if f.Pool.MaxQueueCapacity > 0 && f.Pool.QueueCapacity > f.Pool.MaxQueueCapacity {
		return fmt.Errorf("pool.queue_capacity must not exceed pool.max_queue_capacity")
	}

	if f.Pool.InitRetries < 0 {
		return fmt.Errorf("pool.init_retries must be non-negative")
	}

	if f.Workload.Jobs < 0 || f.Workload.Producers < 0 {
		return fmt.Errorf("workload.jobs and workload.producers must be non-negative")
	}

	if f.Chaos.Ratio < 0 || f.Chaos.Ratio > 1 {
		return fmt.Errorf("chaos.ratio must be between 0 and 1")
	}

	if _, err := f.LogLevel(); err != nil {
		return err
	}

	if _, err := f.StatusInterval(); err != nil {
		return err
	}

	return nil
}
