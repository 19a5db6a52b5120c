package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the root configuration for both the server and the kiosk client.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	Verify     VerifyConfig     `mapstructure:"verify"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Kiosk      KioskConfig      `mapstructure:"kiosk"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	DataDir     string   `mapstructure:"data_dir"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds settings for the SQLite audit database.
type DBConfig struct {
	File string `mapstructure:"file"`
}

// StorageConfig holds settings for the enrollment store on disk.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// RecognizerConfig holds settings for the external face recognizer service.
type RecognizerConfig struct {
	URL              string  `mapstructure:"url"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	DetProbThreshold float64 `mapstructure:"det_prob_threshold"`
	EmbeddingSize    int     `mapstructure:"embedding_size"`
}

// VerifyConfig holds settings for the verification decision.
type VerifyConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MinImageSize        int     `mapstructure:"min_image_size"`
	MinFaceRatio        float64 `mapstructure:"min_face_ratio"`
}

// MQTTConfig holds settings for the optional verification event publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// KioskConfig holds settings for the kiosk client flow.
type KioskConfig struct {
	APIURL               string       `mapstructure:"api_url"`
	Language             string       `mapstructure:"language"`
	CountdownSeconds     int          `mapstructure:"countdown_seconds"`
	PollIntervalSeconds  int          `mapstructure:"poll_interval_seconds"`
	SubmitTimeoutSeconds int          `mapstructure:"submit_timeout_seconds"`
	Camera               CameraConfig `mapstructure:"camera"`
}

// CameraConfig holds settings for the webcam frame source.
type CameraConfig struct {
	DeviceID    int `mapstructure:"device_id"`
	Width       int `mapstructure:"width"`
	Height      int `mapstructure:"height"`
	FPS         int `mapstructure:"fps"`
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

// Timeout returns the recognizer request timeout as a duration.
func (c RecognizerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Countdown returns the per-pose capture countdown as a duration.
func (c KioskConfig) Countdown() time.Duration {
	return time.Duration(c.CountdownSeconds) * time.Second
}

// PollInterval returns the verification poll interval as a duration.
func (c KioskConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SubmitTimeout returns the enrollment submission timeout as a duration.
func (c KioskConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSeconds) * time.Second
}

// Load reads configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment variables override file values, e.g. FACEGATE_KIOSK_API_URL.
	v.AutomaticEnv()
	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// FACEGATE_API_URL is the documented short form for pointing the kiosk
	// at a remote backend; it wins over everything else.
	if apiURL := os.Getenv("FACEGATE_API_URL"); apiURL != "" {
		cfg.Kiosk.APIURL = apiURL
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.cors_origins", []string{
		"http://localhost:3000",
		"http://localhost:3001",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:3001",
	})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// DB defaults
	v.SetDefault("db.file", "./data/facegate.db")

	// Storage defaults
	v.SetDefault("storage.dir", "./face_data")

	// Recognizer defaults
	v.SetDefault("recognizer.url", "http://localhost:18081")
	v.SetDefault("recognizer.timeout_seconds", 60)
	v.SetDefault("recognizer.det_prob_threshold", 0.8)
	v.SetDefault("recognizer.embedding_size", 512)

	// Verification defaults
	v.SetDefault("verify.similarity_threshold", 0.6)
	v.SetDefault("verify.min_image_size", 200)
	v.SetDefault("verify.min_face_ratio", 0.05)

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "facegate")
	v.SetDefault("mqtt.topic", "facegate/verification")

	// Kiosk defaults
	v.SetDefault("kiosk.api_url", "http://localhost:8000")
	v.SetDefault("kiosk.language", "en")
	v.SetDefault("kiosk.countdown_seconds", 3)
	v.SetDefault("kiosk.poll_interval_seconds", 2)
	v.SetDefault("kiosk.submit_timeout_seconds", 180)
	v.SetDefault("kiosk.camera.device_id", 0)
	v.SetDefault("kiosk.camera.width", 1280)
	v.SetDefault("kiosk.camera.height", 720)
	v.SetDefault("kiosk.camera.fps", 30)
	v.SetDefault("kiosk.camera.jpeg_quality", 90)
}

// ensureDirectories makes sure all required directories exist.
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Storage.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if cfg.Log.File != "" {
		logDir := filepath.Dir(cfg.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
