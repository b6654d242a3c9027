package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
telegram:
  bot_token: "123:abc"
  chat_id: "-1001"
capture:
  front_videos: 2
  back_videos: 0
  duration: 3s
  width: 640
  height: 480
network:
  approved_ranges:
    - 203.0.113.0/28
    - 198.51.100.7
location:
  timeout: 20s
  high_accuracy: false
premises:
  latitude: 43.8563
  longitude: 18.4131
  radius_meters: 250
log:
  format: json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigName+".yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.BaseURL)
	assert.Equal(t, 1, cfg.FrontVideos)
	assert.Equal(t, 1, cfg.BackVideos)
	assert.Equal(t, 5*time.Second, cfg.VideoDuration)
	assert.Equal(t, Quality{Width: 1280, Height: 720, FrameRate: 25, Bitrate: 1500000}, cfg.VideoQuality)
	assert.Equal(t, 15*time.Second, cfg.LocationTimeout)
	assert.Equal(t, 10*time.Second, cfg.FallbackLocationTimeout)
	assert.True(t, cfg.HighAccuracy)
	assert.Nil(t, cfg.Premises)
	assert.Empty(t, cfg.ApprovedRanges)
	assert.Equal(t, 8080, cfg.Port)

	assert.EqualError(t, cfg.Validate(), "telegram.bot_token is required")
}

func TestLoadFile(t *testing.T) {
	dir := writeConfig(t, sampleYAML)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, 2, cfg.FrontVideos)
	assert.Equal(t, 0, cfg.BackVideos)
	assert.Equal(t, 3*time.Second, cfg.VideoDuration)
	assert.Equal(t, 640, cfg.VideoQuality.Width)
	assert.Equal(t, 25, cfg.VideoQuality.FrameRate)
	assert.Equal(t, []string{"203.0.113.0/28", "198.51.100.7"}, cfg.ApprovedIPRanges)
	assert.Len(t, cfg.ApprovedRanges, 2)
	assert.Equal(t, 20*time.Second, cfg.LocationTimeout)
	assert.False(t, cfg.HighAccuracy)
	require.NotNil(t, cfg.Premises)
	assert.Equal(t, 250.0, cfg.Premises.RadiusMeters)
	assert.Equal(t, "json", cfg.LogFormat)

	// an explicit file path works as well
	cfg, err = Load(filepath.Join(dir, ConfigName+".yaml"))
	require.NoError(t, err)
	assert.Equal(t, "-1001", cfg.Telegram.ChatID)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := writeConfig(t, sampleYAML)
	t.Setenv("DEVICE_REPORT_TELEGRAM_CHAT_ID", "42")
	t.Setenv("DEVICE_REPORT_NETWORK_APPROVED_RANGES", "10.0.0.0/8,192.168.1.1")
	t.Setenv("DEVICE_REPORT_CAPTURE_DURATION", "7s")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.ApprovedIPRanges)
	assert.Equal(t, 7*time.Second, cfg.VideoDuration)
}

func TestLoadRejectsMalformedRange(t *testing.T) {
	dir := writeConfig(t, "network:\n  approved_ranges:\n    - 10.0.0.0/33\n")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Telegram:        Telegram{BotToken: "t", ChatID: "c"},
			VideoDuration:   time.Second,
			LocationTimeout: time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no chat id":     func(c *Config) { c.Telegram.ChatID = "" },
		"negative count": func(c *Config) { c.BackVideos = -1 },
		"zero duration":  func(c *Config) { c.VideoDuration = 0 },
		"zero timeout":   func(c *Config) { c.LocationTimeout = 0 },
		"bad premises":   func(c *Config) { c.Premises = &Premises{Latitude: 91, RadiusMeters: 10} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
