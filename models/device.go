package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the camera facing direction of a capture.
type Direction string

const (
	DirectionFront Direction = "front"
	DirectionBack  Direction = "back"
)

// FacingMode is the platform name for the direction.
func (d Direction) FacingMode() string {
	if d == DirectionFront {
		return "user"
	}
	return "environment"
}

// Title is the capitalised direction used in captions.
func (d Direction) Title() string {
	if d == DirectionFront {
		return "Front"
	}
	return "Back"
}

// VideoCapture is one recorded clip. Data holds the base64 form of the
// recording so the report stays a single textual structure.
type VideoCapture struct {
	Direction  Direction `json:"type"`
	Data       string    `json:"data"`
	MimeType   string    `json:"mime_type"`
	CapturedAt time.Time `json:"timestamp"`
	Resolution string    `json:"resolution"`
	Duration   string    `json:"duration"`
}

// BatteryStatus holds the charge fraction in [0,1].
type BatteryStatus struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// LevelPercent renders the charge level as a whole percentage, e.g. "87%".
func (b BatteryStatus) LevelPercent() string {
	pct := decimal.NewFromFloat(b.Level).Mul(decimal.NewFromInt(100)).Round(0)
	return pct.String() + "%"
}

type NetworkStatus struct {
	Type          string  `json:"type"`
	EffectiveType string  `json:"effective_type"`
	DownlinkMbps  float64 `json:"downlink_mbps,omitempty"`
}

// Downlink renders the downlink estimate, "unknown" when not reported.
func (n NetworkStatus) Downlink() string {
	if n.DownlinkMbps <= 0 {
		return "unknown"
	}
	return decimal.NewFromFloat(n.DownlinkMbps).Round(2).String() + " Mbps"
}

// IPInfo is the subset of the IP lookup response kept in the report.
type IPInfo struct {
	IP       string `json:"ip"`
	ISP      string `json:"isp"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Timezone string `json:"timezone"`
}

const (
	SourceGPS     = "GPS"
	SourceNetwork = "Network"

	gpsAccuracyMeters = 100
)

type Location struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	Source         string  `json:"source"`
	MapsURL        string  `json:"maps_url"`
}

// NewLocation derives the source and map link from a position fix.
func NewLocation(lat, lon, accuracy float64) *Location {
	source := SourceNetwork
	if accuracy < gpsAccuracyMeters {
		source = SourceGPS
	}
	return &Location{
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: accuracy,
		Source:         source,
		MapsURL:        MapsURL(lat, lon),
	}
}

func (l Location) Accuracy() string {
	return decimal.NewFromFloat(l.AccuracyMeters).Round(1).String() + " meters"
}

func MapsURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", lat, lon)
}

// PremisesCheck is the distance between the device fix and the configured
// premises centre.
type PremisesCheck struct {
	DistanceMeters float64 `json:"distance_meters"`
	RadiusMeters   float64 `json:"radius_meters"`
	Inside         bool    `json:"inside"`
}

func (p PremisesCheck) Distance() string {
	return decimal.NewFromFloat(p.DistanceMeters).Round(0).String() + " m"
}
