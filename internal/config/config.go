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

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Vision   VisionConfig   `yaml:"vision"`
	Match    MatchConfig    `yaml:"match"`
	Liveness LivenessConfig `yaml:"liveness"`
	Gallery  GalleryConfig  `yaml:"gallery"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	MinIO    MinIOConfig    `yaml:"minio"`
	NATS     NATSConfig     `yaml:"nats"`
	Notify   NotifyConfig   `yaml:"notify"`
	Backup   BackupConfig   `yaml:"backup"`
	Network  NetworkConfig  `yaml:"network"`
	Report   ReportConfig   `yaml:"report"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// CameraConfig selects the frame source. Source is "v4l2" or "ffmpeg".
type CameraConfig struct {
	Source      string        `yaml:"source"`
	Device      string        `yaml:"device"`
	Input       string        `yaml:"input"`
	InputFormat string        `yaml:"input_format"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	FPS         int           `yaml:"fps"`
	FFmpegPath  string        `yaml:"ffmpeg_path"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

type CaptureConfig struct {
	Tick time.Duration `yaml:"tick"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	RuntimeLib         string  `yaml:"runtime_lib"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	FrameWidth         int     `yaml:"frame_width"`
}

type MatchConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	Metric    string  `yaml:"metric"`
	Policy    string  `yaml:"policy"`
}

type LivenessConfig struct {
	Mode              string  `yaml:"mode"`
	VarianceThreshold float64 `yaml:"variance_threshold"`
}

type GalleryConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	Encrypt bool   `yaml:"encrypt"`
	KeyFile string `yaml:"key_file"`
}

type LedgerConfig struct {
	Backend        string `yaml:"backend"`
	AttendancePath string `yaml:"attendance_path"`
	LeavePath      string `yaml:"leave_path"`
	SessionLogPath string `yaml:"session_log_path"`
}

// StorageConfig holds evidence images and ledger backups. Backend is "dir" or "minio".
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// NATSConfig enables the JetStream relay when URL is set.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type NotifyConfig struct {
	QueueSize    int        `yaml:"queue_size"`
	SMTP         SMTPConfig `yaml:"smtp"`
	DefaultTo    string     `yaml:"default_to"`
	SpeakCommand []string   `yaml:"speak_command"`
	SoundCommand []string   `yaml:"sound_command"`
	SoundFile    string     `yaml:"sound_file"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type BackupConfig struct {
	Interval time.Duration `yaml:"interval"`
	Prefix   string        `yaml:"prefix"`
}

type NetworkConfig struct {
	Skip       bool          `yaml:"skip"`
	CheckURL   string        `yaml:"check_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type ReportConfig struct {
	LateAfter          string  `yaml:"late_after"`
	LowAttendanceRatio float64 `yaml:"low_attendance_ratio"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated configuration without reading a file.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Camera.Source == "" {
		cfg.Camera.Source = "v4l2"
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 15
	}
	if cfg.Camera.FFmpegPath == "" {
		cfg.Camera.FFmpegPath = "ffmpeg"
	}
	if cfg.Camera.RetryDelay == 0 {
		cfg.Camera.RetryDelay = 2 * time.Second
	}
	if cfg.Capture.Tick == 0 {
		cfg.Capture.Tick = 20 * time.Millisecond
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}
	if cfg.Match.Tolerance == 0 {
		cfg.Match.Tolerance = 0.6
	}
	if cfg.Match.Metric == "" {
		cfg.Match.Metric = "cosine"
	}
	if cfg.Match.Policy == "" {
		cfg.Match.Policy = "first"
	}
	if cfg.Liveness.Mode == "" {
		cfg.Liveness.Mode = "landmark"
	}
	if cfg.Liveness.VarianceThreshold == 0 {
		cfg.Liveness.VarianceThreshold = 100
	}
	if cfg.Gallery.Backend == "" {
		cfg.Gallery.Backend = "fs"
	}
	if cfg.Gallery.Dir == "" {
		cfg.Gallery.Dir = "db"
	}
	if cfg.Gallery.KeyFile == "" {
		cfg.Gallery.KeyFile = "db/key.key"
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "csv"
	}
	if cfg.Ledger.AttendancePath == "" {
		cfg.Ledger.AttendancePath = "attendance.csv"
	}
	if cfg.Ledger.LeavePath == "" {
		cfg.Ledger.LeavePath = "leave.csv"
	}
	if cfg.Ledger.SessionLogPath == "" {
		cfg.Ledger.SessionLogPath = "log.txt"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "dir"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "images"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "attendance"
	}
	if cfg.Notify.QueueSize == 0 {
		cfg.Notify.QueueSize = 64
	}
	if cfg.Notify.SMTP.Port == 0 {
		cfg.Notify.SMTP.Port = 587
	}
	if cfg.Backup.Interval == 0 {
		cfg.Backup.Interval = time.Hour
	}
	if cfg.Backup.Prefix == "" {
		cfg.Backup.Prefix = "backups/"
	}
	if cfg.Network.CheckURL == "" {
		cfg.Network.CheckURL = "https://www.google.com"
	}
	if cfg.Network.Timeout == 0 {
		cfg.Network.Timeout = 5 * time.Second
	}
	if cfg.Network.RetryDelay == 0 {
		cfg.Network.RetryDelay = 60 * time.Second
	}
	if cfg.Report.LateAfter == "" {
		cfg.Report.LateAfter = "09:00:00"
	}
	if cfg.Report.LowAttendanceRatio == 0 {
		cfg.Report.LowAttendanceRatio = 0.75
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate rejects values that would silently change recognition behaviour.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}

	check("camera.source", c.Camera.Source, "v4l2", "ffmpeg")
	check("match.metric", c.Match.Metric, "cosine", "euclidean")
	check("match.policy", c.Match.Policy, "first", "nearest")
	check("liveness.mode", c.Liveness.Mode, "landmark", "variance", "both", "off")
	check("gallery.backend", c.Gallery.Backend, "fs", "postgres")
	check("ledger.backend", c.Ledger.Backend, "csv", "postgres")
	check("storage.backend", c.Storage.Backend, "dir", "minio")

	if c.Match.Tolerance < 0 {
		errs = append(errs, errors.New("match.tolerance must not be negative"))
	}
	if c.Capture.Tick < 0 {
		errs = append(errs, errors.New("capture.tick must not be negative"))
	}
	if c.Camera.Source == "ffmpeg" && c.Camera.Input == "" && c.Camera.Device == "" {
		errs = append(errs, errors.New("camera.input is required for the ffmpeg source"))
	}
	if _, err := time.Parse("15:04:05", c.Report.LateAfter); err != nil {
		errs = append(errs, fmt.Errorf("report.late_after: %w", err))
	}
	return errors.Join(errs...)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ATT_CAMERA_SOURCE"); v != "" {
		cfg.Camera.Source = v
	}
	if v := os.Getenv("ATT_CAMERA_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("ATT_CAMERA_INPUT"); v != "" {
		cfg.Camera.Input = v
	}
	if v := os.Getenv("ATT_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("ATT_ONNX_LIB"); v != "" {
		cfg.Vision.RuntimeLib = v
	}
	if v := os.Getenv("ATT_MATCH_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Match.Tolerance = f
		}
	}
	if v := os.Getenv("ATT_LIVENESS_MODE"); v != "" {
		cfg.Liveness.Mode = v
	}
	if v := os.Getenv("ATT_GALLERY_DIR"); v != "" {
		cfg.Gallery.Dir = v
	}
	if v := os.Getenv("ATT_GALLERY_KEY_FILE"); v != "" {
		cfg.Gallery.KeyFile = v
	}
	if v := os.Getenv("ATT_GALLERY_ENCRYPT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Gallery.Encrypt = b
		}
	}
	if v := os.Getenv("ATT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ATT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ATT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ATT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ATT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ATT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ATT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ATT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ATT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ATT_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ATT_SMTP_HOST"); v != "" {
		cfg.Notify.SMTP.Host = v
	}
	if v := os.Getenv("ATT_SMTP_USERNAME"); v != "" {
		cfg.Notify.SMTP.Username = v
	}
	if v := os.Getenv("ATT_SMTP_PASSWORD"); v != "" {
		cfg.Notify.SMTP.Password = v
	}
	if v := os.Getenv("ATT_SMTP_FROM"); v != "" {
		cfg.Notify.SMTP.From = v
	}
	if v := os.Getenv("ATT_NOTIFY_DEFAULT_TO"); v != "" {
		cfg.Notify.DefaultTo = v
	}
	if v := os.Getenv("ATT_NETWORK_SKIP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Network.Skip = b
		}
	}
}
