package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"device-report/ipcheck"

	"github.com/apex/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "DEVICE_REPORT"
	ConfigName = "device-report"
)

type Telegram struct {
	BaseURL  string
	BotToken string
	ChatID   string
}

type Quality struct {
	Width     int
	Height    int
	FrameRate int
	Bitrate   int
}

// Premises is an optional geofence around a known site.
type Premises struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// Platform holds where the local providers find the hardware.
type Platform struct {
	FrontCamera     string
	BackCamera      string
	FFmpegPath      string
	GPSDAddress     string
	PowerSupplyPath string
	NetClassPath    string
}

type AMQP struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// Config is read once at start-up and then only passed by value.
type Config struct {
	Telegram Telegram

	FrontVideos   int
	BackVideos    int
	VideoDuration time.Duration
	VideoQuality  Quality

	ApprovedIPRanges []string
	ApprovedRanges   []ipcheck.Range

	LocationTimeout         time.Duration
	FallbackLocationTimeout time.Duration
	HighAccuracy            bool

	IPLookupURL string
	GeocoderURL string

	Premises *Premises
	Platform Platform
	AMQP     AMQP

	Port      int
	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")

	v.SetDefault("capture.front_videos", 1)
	v.SetDefault("capture.back_videos", 1)
	v.SetDefault("capture.duration", "5s")
	v.SetDefault("capture.width", 1280)
	v.SetDefault("capture.height", 720)
	v.SetDefault("capture.frame_rate", 25)
	v.SetDefault("capture.bitrate", 1500000)

	v.SetDefault("network.approved_ranges", []string{})

	v.SetDefault("location.timeout", "15s")
	v.SetDefault("location.fallback_timeout", "10s")
	v.SetDefault("location.high_accuracy", true)

	v.SetDefault("lookup.ip_url", "https://ipapi.co/json/")
	v.SetDefault("lookup.geocoder_url", "https://nominatim.openstreetmap.org")

	v.SetDefault("premises.latitude", 0.0)
	v.SetDefault("premises.longitude", 0.0)
	v.SetDefault("premises.radius_meters", 0.0)

	v.SetDefault("platform.front_camera", "/dev/video0")
	v.SetDefault("platform.back_camera", "/dev/video2")
	v.SetDefault("platform.ffmpeg", "ffmpeg")
	v.SetDefault("platform.gpsd", "localhost:2947")
	v.SetDefault("platform.power_supply_path", "/sys/class/power_supply")
	v.SetDefault("platform.net_class_path", "/sys/class/net")

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "device-report")
	v.SetDefault("amqp.routing_key", "run.events")

	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "cli")
}

// Load reads configuration from an optional .env file, an optional YAML
// file and DEVICE_REPORT_* environment variables, in increasing priority.
// path may name a file or a directory to search for device-report.yaml.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Failed to load .env: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		if path == "" {
			path = "."
		}
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		log.Infof("No %s.yaml found, using defaults and env vars", ConfigName)
	} else {
		log.Infof("Loaded %s", v.ConfigFileUsed())
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Telegram: Telegram{
			BaseURL:  v.GetString("telegram.base_url"),
			BotToken: v.GetString("telegram.bot_token"),
			ChatID:   v.GetString("telegram.chat_id"),
		},
		FrontVideos:   v.GetInt("capture.front_videos"),
		BackVideos:    v.GetInt("capture.back_videos"),
		VideoDuration: v.GetDuration("capture.duration"),
		VideoQuality: Quality{
			Width:     v.GetInt("capture.width"),
			Height:    v.GetInt("capture.height"),
			FrameRate: v.GetInt("capture.frame_rate"),
			Bitrate:   v.GetInt("capture.bitrate"),
		},
		ApprovedIPRanges:        splitList(v.GetStringSlice("network.approved_ranges")),
		LocationTimeout:         v.GetDuration("location.timeout"),
		FallbackLocationTimeout: v.GetDuration("location.fallback_timeout"),
		HighAccuracy:            v.GetBool("location.high_accuracy"),
		IPLookupURL:             v.GetString("lookup.ip_url"),
		GeocoderURL:             v.GetString("lookup.geocoder_url"),
		Platform: Platform{
			FrontCamera:     v.GetString("platform.front_camera"),
			BackCamera:      v.GetString("platform.back_camera"),
			FFmpegPath:      v.GetString("platform.ffmpeg"),
			GPSDAddress:     v.GetString("platform.gpsd"),
			PowerSupplyPath: v.GetString("platform.power_supply_path"),
			NetClassPath:    v.GetString("platform.net_class_path"),
		},
		AMQP: AMQP{
			URL:        v.GetString("amqp.url"),
			Exchange:   v.GetString("amqp.exchange"),
			RoutingKey: v.GetString("amqp.routing_key"),
		},
		Port:      v.GetInt("server.port"),
		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
	}
	if r := v.GetFloat64("premises.radius_meters"); r > 0 {
		cfg.Premises = &Premises{
			Latitude:     v.GetFloat64("premises.latitude"),
			Longitude:    v.GetFloat64("premises.longitude"),
			RadiusMeters: r,
		}
	}

	ranges, err := ipcheck.ParseRanges(cfg.ApprovedIPRanges)
	if err != nil {
		return Config{}, err
	}
	cfg.ApprovedRanges = ranges
	return cfg, nil
}

// splitList accepts both YAML lists and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks what a run needs before anything is collected.
func (c Config) Validate() error {
	switch {
	case c.Telegram.BotToken == "":
		return errors.New("telegram.bot_token is required")
	case c.Telegram.ChatID == "":
		return errors.New("telegram.chat_id is required")
	case c.FrontVideos < 0 || c.BackVideos < 0:
		return errors.New("capture counts must not be negative")
	case c.VideoDuration <= 0:
		return errors.New("capture.duration must be positive")
	case c.LocationTimeout <= 0:
		return errors.New("location.timeout must be positive")
	}
	if p := c.Premises; p != nil {
		if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
			return fmt.Errorf("premises centre %v,%v is out of range", p.Latitude, p.Longitude)
		}
	}
	return nil
}
