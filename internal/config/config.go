package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type CameraConfig struct {
	SourceType  string `yaml:"source_type"` // device, gstreamer
	DeviceID    int    `yaml:"device_id"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	GstPipeline string `yaml:"gst_pipeline"`
}

type OCRConfig struct {
	Backends          []string `yaml:"backends"`
	Language          string   `yaml:"language"`
	Command           string   `yaml:"command"` // external engine for the exec backend
	CaptureIntervalMS int      `yaml:"capture_interval_ms"`
	MinConfidence     float64  `yaml:"min_confidence"`
	MinTextLen        int      `yaml:"min_text_len"`
	DebounceMS        int      `yaml:"debounce_ms"`
	MaxHistory        int      `yaml:"max_history"`
	CropMaxPx         int      `yaml:"crop_max_px"`
	ScaleMinPx        int      `yaml:"scale_min_px"`
}

type TTSConfig struct {
	Mode            string  `yaml:"mode"` // exec, mock
	Command         string  `yaml:"command"`
	FallbackCommand string  `yaml:"fallback_command"`
	Voice           string  `yaml:"voice"`
	Speed           float64 `yaml:"speed"`
	Volume          float64 `yaml:"volume"`
	SampleRate      int     `yaml:"sample_rate"`
	Channels        int     `yaml:"channels"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxDetections int    `yaml:"max_detections"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Camera      CameraConfig    `yaml:"camera"`
	OCR         OCRConfig       `yaml:"ocr"`
	TTS         TTSConfig       `yaml:"tts"`
	Journal     JournalConfig   `yaml:"journal"`
}

// CaptureInterval is the minimum spacing between frames handed to recognition.
func (c OCRConfig) CaptureInterval() time.Duration {
	return time.Duration(c.CaptureIntervalMS) * time.Millisecond
}

// DebounceWindow is the window in which an identical accepted text is
// suppressed.
func (c OCRConfig) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func Default() Config {
	return Config{
		RuntimeName: "visper-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Camera: CameraConfig{
			SourceType: "device",
			DeviceID:   0,
			Width:      1280,
			Height:     720,
		},
		OCR: OCRConfig{
			Backends:          []string{"tesseract"},
			Language:          "eng",
			CaptureIntervalMS: 100,
			MinConfidence:     0.4,
			MinTextLen:        2,
			DebounceMS:        1500,
			MaxHistory:        50,
			CropMaxPx:         1920,
			ScaleMinPx:        400,
		},
		TTS: TTSConfig{
			Mode:            "exec",
			FallbackCommand: "espeak-ng",
			Voice:           "p335",
			Speed:           1.0,
			Volume:          0.9,
			SampleRate:      22050,
			Channels:        1,
		},
		Journal: JournalConfig{
			Path:          "./data/visper-detections.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxDetections: 10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VISPER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VISPER_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VISPER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VISPER_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VISPER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VISPER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VISPER_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VISPER_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VISPER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VISPER_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VISPER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VISPER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VISPER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VISPER_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeout, "VISPER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Camera.SourceType, "VISPER_CAMERA_SOURCE_TYPE")
	overrideInt(&cfg.Camera.DeviceID, "VISPER_CAMERA_DEVICE_ID")
	overrideInt(&cfg.Camera.Width, "VISPER_CAMERA_WIDTH")
	overrideInt(&cfg.Camera.Height, "VISPER_CAMERA_HEIGHT")
	overrideString(&cfg.Camera.GstPipeline, "VISPER_CAMERA_GST_PIPELINE")
	overrideStringSlice(&cfg.OCR.Backends, "VISPER_OCR_BACKENDS")
	overrideString(&cfg.OCR.Language, "VISPER_OCR_LANGUAGE")
	overrideString(&cfg.OCR.Command, "VISPER_OCR_COMMAND")
	overrideInt(&cfg.OCR.CaptureIntervalMS, "VISPER_OCR_CAPTURE_INTERVAL_MS")
	overrideFloat(&cfg.OCR.MinConfidence, "VISPER_OCR_MIN_CONFIDENCE")
	overrideInt(&cfg.OCR.MinTextLen, "VISPER_OCR_MIN_TEXT_LEN")
	overrideInt(&cfg.OCR.DebounceMS, "VISPER_OCR_DEBOUNCE_MS")
	overrideInt(&cfg.OCR.MaxHistory, "VISPER_OCR_MAX_HISTORY")
	overrideInt(&cfg.OCR.CropMaxPx, "VISPER_OCR_CROP_MAX_PX")
	overrideInt(&cfg.OCR.ScaleMinPx, "VISPER_OCR_SCALE_MIN_PX")
	overrideString(&cfg.TTS.Mode, "VISPER_TTS_MODE")
	overrideString(&cfg.TTS.Command, "VISPER_TTS_COMMAND")
	overrideString(&cfg.TTS.FallbackCommand, "VISPER_TTS_FALLBACK_COMMAND")
	overrideString(&cfg.TTS.Voice, "VISPER_TTS_VOICE")
	overrideFloat(&cfg.TTS.Speed, "VISPER_TTS_SPEED")
	overrideFloat(&cfg.TTS.Volume, "VISPER_TTS_VOLUME")
	overrideInt(&cfg.TTS.SampleRate, "VISPER_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "VISPER_TTS_CHANNELS")
	overrideString(&cfg.Journal.Path, "VISPER_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "VISPER_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "VISPER_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxDetections, "VISPER_JOURNAL_MAX_DETECTIONS")
	overrideBool(&cfg.Journal.VacuumOnStart, "VISPER_JOURNAL_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Camera.SourceType {
	case "device", "gstreamer":
	default:
		return errors.New("camera.source_type must be one of device|gstreamer")
	}
	if cfg.Camera.SourceType == "gstreamer" && cfg.Camera.GstPipeline == "" {
		return errors.New("camera.gst_pipeline must be set when source_type=gstreamer")
	}
	if cfg.Camera.SourceType == "device" && (cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0) {
		return errors.New("camera.width and camera.height must be positive")
	}
	if cfg.OCR.CaptureIntervalMS < 50 {
		return errors.New("ocr.capture_interval_ms must be at least 50")
	}
	if cfg.OCR.MinConfidence < 0 || cfg.OCR.MinConfidence > 1 {
		return errors.New("ocr.min_confidence must be within [0, 1]")
	}
	if cfg.OCR.MinTextLen <= 0 {
		return errors.New("ocr.min_text_len must be positive")
	}
	if cfg.OCR.DebounceMS < 0 {
		return errors.New("ocr.debounce_ms must be >= 0")
	}
	if cfg.OCR.MaxHistory <= 0 {
		return errors.New("ocr.max_history must be positive")
	}
	if cfg.OCR.CropMaxPx <= 0 || cfg.OCR.ScaleMinPx <= 0 {
		return errors.New("ocr.crop_max_px and ocr.scale_min_px must be positive")
	}
	switch cfg.TTS.Mode {
	case "exec", "mock":
	default:
		return errors.New("tts.mode must be one of exec|mock")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" && cfg.TTS.FallbackCommand == "" {
		return errors.New("tts.command or tts.fallback_command must be set when mode=exec")
	}
	if cfg.TTS.Speed <= 0 {
		return errors.New("tts.speed must be positive")
	}
	if cfg.TTS.Volume < 0 || cfg.TTS.Volume > 1 {
		return errors.New("tts.volume must be within [0, 1]")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Journal.RetentionMode == "persistent" && cfg.Journal.Path == "" {
		return errors.New("journal.path must not be empty")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	return nil
}
