// Package builder runs the collection stages of a run in a fixed order and
// folds each stage's outcome into the report.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"device-report/capture"
	"device-report/config"
	"device-report/geolocation"
	"device-report/ipcheck"
	"device-report/models"
	"device-report/platform"
	"device-report/progress"

	"github.com/apex/log"
)

const (
	StatusInside  = "Approved. Device is inside the approved network"
	StatusOutside = "Outside the approved network"

	WarnBatteryUnsupported = "Battery API not supported"
	WarnNetworkUnsupported = "Network Information API not supported"
	WarnAddressFailed      = "Failed to get address from coordinates"

	// noErrorKey is passed to fold for stages that only warn.
	noErrorKey = ""
)

var (
	errCameraUnsupported = errors.New("Camera API not supported")
	errNoIP              = errors.New("Failed to fetch IP information")
)

type BatteryProvider interface {
	Battery(ctx context.Context) (models.BatteryStatus, error)
}

type NetworkProvider interface {
	Network(ctx context.Context) (models.NetworkStatus, error)
}

type IPLookup interface {
	Lookup(ctx context.Context) (*models.IPInfo, error)
}

type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

type Locator interface {
	Resolve(ctx context.Context, opts geolocation.Options, notify func(status string)) (geolocation.Position, error)
}

type VideoCapturer interface {
	CaptureVideo(ctx context.Context, direction models.Direction, duration time.Duration, q capture.Quality) (models.VideoCapture, error)
}

// Providers are the collaborators of the builder. A nil field means the
// platform lacks that capability.
type Providers struct {
	Battery  BatteryProvider
	Network  NetworkProvider
	IP       IPLookup
	Geocoder ReverseGeocoder
	Locator  Locator
	Capturer VideoCapturer
}

type Builder struct {
	cfg config.Config
	p   Providers
}

func New(cfg config.Config, p Providers) *Builder {
	return &Builder{cfg: cfg, p: p}
}

// Build runs every stage against r. A stage failure is recorded in r and
// never stops the stages after it.
func (b *Builder) Build(ctx context.Context, r *models.Report, rep *progress.Reporter) {
	rep.Status("Collecting system information...")

	fold(r, models.ErrKeyBattery, timed("battery", func() outcome[models.BatteryStatus] {
		return b.battery(ctx)
	}), func(v models.BatteryStatus) { r.Battery = &v })
	rep.Progress(15)

	fold(r, models.ErrKeyNetwork, timed("network", func() outcome[models.NetworkStatus] {
		return b.network(ctx)
	}), func(v models.NetworkStatus) { r.Network = &v })
	rep.Progress(25)

	fold(r, models.ErrKeyIPInfo, timed("ip_info", func() outcome[*models.IPInfo] {
		return b.ipInfo(ctx)
	}), func(v *models.IPInfo) {
		r.IPInfo = v
		r.LocationStatus = b.classify(v.IP)
	})
	rep.Progress(40)

	rep.Status("Requesting location permission...")
	located := fold(r, models.ErrKeyLocation, timed("location", func() outcome[*models.Location] {
		return b.location(ctx, rep)
	}), func(v *models.Location) { r.Location = v })
	if located {
		if b.cfg.Premises != nil {
			r.Premises = checkPremises(*b.cfg.Premises, r.Location)
		}
		fold(r, noErrorKey, timed("address", func() outcome[string] {
			return b.address(ctx, r.Location)
		}), func(v string) { r.Address = v })
	}
	rep.Progress(60)

	b.captureVideos(ctx, r, rep)
}

func (b *Builder) battery(ctx context.Context) outcome[models.BatteryStatus] {
	if b.p.Battery == nil {
		return absent[models.BatteryStatus](WarnBatteryUnsupported)
	}
	v, err := b.p.Battery.Battery(ctx)
	switch {
	case errors.Is(err, platform.ErrUnsupported):
		return absent[models.BatteryStatus](WarnBatteryUnsupported)
	case err != nil:
		return failed[models.BatteryStatus](err)
	}
	return succeeded(v)
}

func (b *Builder) network(ctx context.Context) outcome[models.NetworkStatus] {
	if b.p.Network == nil {
		return absent[models.NetworkStatus](WarnNetworkUnsupported)
	}
	v, err := b.p.Network.Network(ctx)
	switch {
	case errors.Is(err, platform.ErrUnsupported):
		return absent[models.NetworkStatus](WarnNetworkUnsupported)
	case err != nil:
		return failed[models.NetworkStatus](err)
	}
	return succeeded(v)
}

func (b *Builder) ipInfo(ctx context.Context) outcome[*models.IPInfo] {
	if b.p.IP == nil {
		return failed[*models.IPInfo](errors.New("IP lookup is not configured"))
	}
	info, err := b.p.IP.Lookup(ctx)
	if err != nil {
		return failed[*models.IPInfo](err)
	}
	if info == nil || info.IP == "" {
		return failed[*models.IPInfo](errNoIP)
	}
	return succeeded(info)
}

func (b *Builder) classify(ip string) string {
	if ipcheck.IsInRange(ip, b.cfg.ApprovedRanges) {
		return StatusInside
	}
	return StatusOutside
}

func (b *Builder) location(ctx context.Context, rep *progress.Reporter) outcome[*models.Location] {
	if b.p.Locator == nil {
		return failed[*models.Location](geolocation.Unsupported())
	}
	pos, err := b.p.Locator.Resolve(ctx, geolocation.Options{
		HighAccuracy: b.cfg.HighAccuracy,
		Timeout:      b.cfg.LocationTimeout,
	}, rep.Status)
	if err != nil {
		return failed[*models.Location](err)
	}
	return succeeded(models.NewLocation(pos.Latitude, pos.Longitude, pos.Accuracy))
}

// address is best effort: any failure becomes a warning.
func (b *Builder) address(ctx context.Context, loc *models.Location) outcome[string] {
	if b.p.Geocoder == nil {
		return absent[string](WarnAddressFailed)
	}
	addr, err := b.p.Geocoder.ReverseGeocode(ctx, loc.Latitude, loc.Longitude)
	if err != nil || addr == "" {
		if err != nil {
			log.Warnf("Reverse geocoding %v,%v: %v", loc.Latitude, loc.Longitude, err)
		}
		return absent[string](WarnAddressFailed)
	}
	return succeeded(addr)
}

type plan struct {
	direction models.Direction
	count     int
	start     int
}

func (b *Builder) captureVideos(ctx context.Context, r *models.Report, rep *progress.Reporter) {
	if b.p.Capturer == nil {
		r.AddError(models.ErrKeyCamera, errCameraUnsupported)
		rep.Progress(80)
		return
	}

	q := capture.Quality(b.cfg.VideoQuality)
	for _, p := range []plan{
		{models.DirectionFront, b.cfg.FrontVideos, 60},
		{models.DirectionBack, b.cfg.BackVideos, 80},
	} {
		b.captureDirection(ctx, r, rep, p, q)
	}
}

// captureDirection records count clips facing p.direction. The first
// failure ends this direction only.
func (b *Builder) captureDirection(ctx context.Context, r *models.Report, rep *progress.Reporter, p plan, q capture.Quality) {
	const span = 20
	for i := 0; i < p.count; i++ {
		rep.Status(fmt.Sprintf("Preparing %s camera...", p.direction))
		rep.Progress(p.start + i*span/p.count)
		rep.Status(fmt.Sprintf("Recording %s camera video...", p.direction))

		ok := fold(r, models.CameraKey(p.direction), timed(models.CameraKey(p.direction), func() outcome[models.VideoCapture] {
			v, err := b.p.Capturer.CaptureVideo(ctx, p.direction, b.cfg.VideoDuration, q)
			if err != nil {
				return failed[models.VideoCapture](err)
			}
			return succeeded(v)
		}), r.AddVideo)
		if !ok {
			log.Warnf("Skipping remaining %s captures after capture %d failed", p.direction, i)
			return
		}
		rep.Progress(p.start + (i+1)*span/p.count)
	}
}
