package platform

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net"
	"sync"
	"time"

	"device-report/geolocation"

	"github.com/apex/log"
)

const watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"

// gpsd fix modes.
const (
	mode2D = 2
	mode3D = 3
)

// tpv is the subset of a gpsd time-position-velocity report we use.
type tpv struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   *float64  `json:"lat"`
	Lon   *float64  `json:"lon"`
	Eph   float64   `json:"eph"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
}

func (r tpv) accuracy() float64 {
	if r.Eph > 0 {
		return r.Eph
	}
	return math.Max(r.Epx, r.Epy)
}

// GPSD is a location provider backed by a gpsd daemon.
type GPSD struct {
	Addr   string
	dialer net.Dialer
}

func NewGPSD(addr string) *GPSD {
	return &GPSD{Addr: addr}
}

// Watch streams fixes from gpsd. High accuracy only accepts 3D fixes.
func (g *GPSD) Watch(ctx context.Context, opts geolocation.Options) (geolocation.Subscription, error) {
	conn, err := g.dialer.DialContext(ctx, "tcp", g.Addr)
	if err != nil {
		log.Warnf("Failed to connect to gpsd at %s: %v", g.Addr, err)
		return nil, &geolocation.Error{
			Reason: geolocation.ReasonPositionUnavailable,
			Code:   geolocation.CodePositionUnavailable,
			Err:    err,
		}
	}
	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		conn.Close()
		return nil, err
	}

	minMode := mode2D
	if opts.HighAccuracy {
		minMode = mode3D
	}
	sub := &gpsdSubscription{
		conn:    conn,
		updates: make(chan geolocation.Update, 1),
		done:    make(chan struct{}),
	}
	go sub.read(minMode)
	return sub, nil
}

// CurrentPosition waits for a single fix.
func (g *GPSD) CurrentPosition(ctx context.Context, opts geolocation.Options) (geolocation.Position, error) {
	sub, err := g.Watch(ctx, opts)
	if err != nil {
		return geolocation.Position{}, err
	}
	return geolocation.First(ctx, sub, opts.Timeout)
}

type gpsdSubscription struct {
	conn    net.Conn
	updates chan geolocation.Update
	done    chan struct{}
	once    sync.Once
}

func (s *gpsdSubscription) Updates() <-chan geolocation.Update {
	return s.updates
}

func (s *gpsdSubscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *gpsdSubscription) read(minMode int) {
	defer close(s.updates)

	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		var report tpv
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.Class != "TPV" || report.Mode < minMode || report.Lat == nil || report.Lon == nil {
			continue
		}
		ts := report.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		if !s.send(geolocation.Update{Position: geolocation.Position{
			Latitude:  *report.Lat,
			Longitude: *report.Lon,
			Accuracy:  report.accuracy(),
			Timestamp: ts,
		}}) {
			return
		}
	}

	select {
	case <-s.done:
		return
	default:
	}
	err := scanner.Err()
	if err == nil {
		err = geolocation.NewError(geolocation.CodePositionUnavailable)
	}
	s.send(geolocation.Update{Err: err})
}

func (s *gpsdSubscription) send(u geolocation.Update) bool {
	select {
	case s.updates <- u:
		return true
	case <-s.done:
		return false
	}
}
