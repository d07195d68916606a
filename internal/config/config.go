package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port int

	UseMockCamera bool
	CameraID      int
	CameraWidth   int
	CameraHeight  int

	DBPath         string
	ImageDirectory string

	LogFile   string
	LogLevel  string
	LogFormat string

	CaptureIntervalSec float64
	QueueSize          int
	AFTimeoutSec       float64
	QualityMethod      string
	// SimulateCapture runs the loop without a camera, writing placeholders.
	SimulateCapture bool

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	ConfigFile string
}

// deviceFile mirrors configs/device.yaml. Zero values leave the default in place.
type deviceFile struct {
	Logging struct {
		FilePath string `yaml:"file_path"`
		Level    string `yaml:"level"`
		Format   string `yaml:"format"`
	} `yaml:"logging"`
	Storage struct {
		DBPath   string `yaml:"db_path"`
		ImageDir string `yaml:"image_dir"`
	} `yaml:"storage"`
	Capture struct {
		IntervalSec float64 `yaml:"interval_sec"`
		QueueSize   int     `yaml:"queue_size"`
	} `yaml:"capture"`
	MQTT struct {
		Broker string `yaml:"broker"`
		Topic  string `yaml:"topic"`
	} `yaml:"mqtt"`
}

// Default returns the built-in configuration before any file or environment is applied.
func Default() *Config {
	return &Config{
		Port:               8000,
		UseMockCamera:      true,
		CameraID:           0,
		CameraWidth:        1920,
		CameraHeight:       1080,
		DBPath:             "data/profiles/profiles.db",
		ImageDirectory:     "data/images",
		LogFile:            "data/logs/app.log",
		LogLevel:           "info",
		LogFormat:          "json",
		CaptureIntervalSec: 1.5,
		QueueSize:          50,
		AFTimeoutSec:       3.0,
		QualityMethod:      "laplacian",
		MQTTTopic:          "agricam/captures",
		MQTTClientID:       "agricam",
		ConfigFile:         "configs/device.yaml",
	}
}

// Load builds the configuration: defaults, then the optional YAML device
// file, then environment variables (a .env file is loaded first if present).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	cfg.ConfigFile = getEnv("CONFIG_FILE", cfg.ConfigFile)

	if err := cfg.applyFile(cfg.ConfigFile); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f deviceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.LogFile, f.Logging.FilePath)
	setString(&c.LogLevel, f.Logging.Level)
	setString(&c.LogFormat, f.Logging.Format)
	setString(&c.DBPath, f.Storage.DBPath)
	setString(&c.ImageDirectory, f.Storage.ImageDir)
	setString(&c.MQTTBroker, f.MQTT.Broker)
	setString(&c.MQTTTopic, f.MQTT.Topic)
	if f.Capture.IntervalSec > 0 {
		c.CaptureIntervalSec = f.Capture.IntervalSec
	}
	if f.Capture.QueueSize > 0 {
		c.QueueSize = f.Capture.QueueSize
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.UseMockCamera = getEnvAsBool("USE_MOCK_CAMERA", c.UseMockCamera)
	c.CameraID = getEnvAsInt("CAMERA_ID", c.CameraID)
	c.CameraWidth = getEnvAsInt("CAMERA_WIDTH", c.CameraWidth)
	c.CameraHeight = getEnvAsInt("CAMERA_HEIGHT", c.CameraHeight)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.ImageDirectory = getEnv("IMAGE_DIR", c.ImageDirectory)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.CaptureIntervalSec = getEnvAsFloat("CAPTURE_INTERVAL", c.CaptureIntervalSec)
	c.QueueSize = getEnvAsInt("QUEUE_SIZE", c.QueueSize)
	c.AFTimeoutSec = getEnvAsFloat("AF_TIMEOUT", c.AFTimeoutSec)
	c.QualityMethod = getEnv("QUALITY_METHOD", c.QualityMethod)
	c.SimulateCapture = getEnvAsBool("SIMULATE_CAPTURE", c.SimulateCapture)
	c.MQTTBroker = getEnv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopic = getEnv("MQTT_TOPIC", c.MQTTTopic)
	c.MQTTClientID = getEnv("MQTT_CLIENT_ID", c.MQTTClientID)
}

// minCaptureIntervalSec matches capture.MinInterval.
const minCaptureIntervalSec = 0.05

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.CaptureIntervalSec < minCaptureIntervalSec {
		return fmt.Errorf("capture interval must be at least %vs, got %v", minCaptureIntervalSec, c.CaptureIntervalSec)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if c.AFTimeoutSec <= 0 {
		return fmt.Errorf("autofocus timeout must be positive, got %v", c.AFTimeoutSec)
	}
	switch strings.ToLower(c.QualityMethod) {
	case "laplacian", "tenengrad":
	default:
		return fmt.Errorf("unknown quality method %q", c.QualityMethod)
	}
	if c.DBPath == "" || c.ImageDirectory == "" {
		return errors.New("db path and image directory are required")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
