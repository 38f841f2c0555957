package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts yaml values like "30s" or "10m", or a bare number of
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration for the voicepipe server.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Web          WebConfig          `yaml:"web"`
	Transport    TransportConfig    `yaml:"transport"`
	Audio        AudioConfig        `yaml:"audio"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Store        StoreConfig        `yaml:"store"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StaticDir string `yaml:"static_dir"`
}

type TransportConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	IP      string `yaml:"ip"`
	Port    int    `yaml:"port"`
}

// AudioConfig names the on-disk layout and ingest policy.
type AudioConfig struct {
	UploadDir      string   `yaml:"upload_dir"`
	ResultsDir     string   `yaml:"results_dir"`
	TranscriptsDir string   `yaml:"transcripts_dir"`
	TTSDir         string   `yaml:"tts_dir"`
	SampleRate     int      `yaml:"sample_rate"`
	ChunkTTL       Duration `yaml:"chunk_ttl"`
}

// PipelineConfig sizes the job queue and worker pool.
type PipelineConfig struct {
	Workers        int      `yaml:"workers"`
	QueueCapacity  int      `yaml:"queue_capacity"`
	DenoiseTimeout Duration `yaml:"denoise_timeout"`
	ASRTimeout     Duration `yaml:"asr_timeout"`
	TTSTimeout     Duration `yaml:"tts_timeout"`
}

// StoreConfig selects and parameterizes the session store driver.
type StoreConfig struct {
	Type   string            `yaml:"type"`
	Redis  RedisStoreConfig  `yaml:"redis,omitempty"`
	SQLite SQLiteStoreConfig `yaml:"sqlite,omitempty"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type SQLiteStoreConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// CapabilitiesConfig selects one provider per pipeline stage.
type CapabilitiesConfig struct {
	Denoise DenoiseConfig `yaml:"denoise"`
	ASR     ASRConfig     `yaml:"asr"`
	TTS     TTSConfig     `yaml:"tts"`
}

type DenoiseConfig struct {
	Type      string  `yaml:"type"`
	Threshold float64 `yaml:"threshold,omitempty"`
}

type ASRConfig struct {
	Type    string `yaml:"type"`
	BaseURL string `yaml:"url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty"`
	Lang    string `yaml:"lang,omitempty"`
}

type TTSConfig struct {
	Type    string `yaml:"type"`
	BaseURL string `yaml:"url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Voice   string `yaml:"voice,omitempty"`
	Format  string `yaml:"format,omitempty"`
}
