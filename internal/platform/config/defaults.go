package config

import "time"

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   false,
			StaticDir: "web",
		},
		Transport: TransportConfig{
			WebSocket: WebSocketConfig{
				Enabled: true,
				IP:      "0.0.0.0",
				Port:    8001,
			},
		},
		Audio: AudioConfig{
			UploadDir:      "data/uploads",
			ResultsDir:     "data/results",
			TranscriptsDir: "data/transcripts",
			TTSDir:         "data/tts",
			SampleRate:     16000,
			ChunkTTL:       Duration(10 * time.Minute),
		},
		Pipeline: PipelineConfig{
			Workers:        2,
			QueueCapacity:  256,
			DenoiseTimeout: Duration(30 * time.Second),
			ASRTimeout:     Duration(120 * time.Second),
			TTSTimeout:     Duration(120 * time.Second),
		},
		Store: StoreConfig{
			Type: "memory",
			SQLite: SQLiteStoreConfig{
				DSN: "data/sessions.db",
			},
			Redis: RedisStoreConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "voicepipe",
			},
		},
		Capabilities: CapabilitiesConfig{
			Denoise: DenoiseConfig{
				Type:      "gate",
				Threshold: 0.02,
			},
			ASR: ASRConfig{
				Type:    "http",
				BaseURL: "http://127.0.0.1:9000/transcribe",
				Lang:    "en",
			},
			TTS: TTSConfig{
				Type:    "http",
				BaseURL: "http://127.0.0.1:9000/synthesize",
				Voice:   "en-US-AriaNeural",
				Format:  "wav",
			},
		},
	}
}
