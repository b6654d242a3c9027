// Package capture records short clips from a camera and returns them in a
// transport safe form.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"device-report/models"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

const (
	PrimaryMimeType   = "video/webm;codecs=h264"
	SecondaryMimeType = "video/webm;codecs=vp9"

	// DefaultTimeslice is how often the recorder hands over buffered data.
	DefaultTimeslice = 100 * time.Millisecond
)

var errEmptyRecording = errors.New("Invalid video data format")

type Quality struct {
	Width     int
	Height    int
	FrameRate int
	Bitrate   int
}

// Resolution is the "WxH" label stored with each capture.
func (q Quality) Resolution() string {
	return fmt.Sprintf("%dx%d", q.Width, q.Height)
}

// Constraints are the ideal stream settings. Cameras may substitute the
// closest values they support.
type Constraints struct {
	Direction models.Direction
	Width     int
	Height    int
	FrameRate int
}

// Stream is an acquired camera. Stop releases every track of the stream.
type Stream interface {
	Stop()
}

type RecorderOptions struct {
	MimeType      string
	BitsPerSecond int
}

// Recorder encodes a stream. Data delivers encoded chunks and is closed
// once the recorder has stopped; Err then reports any recording failure.
type Recorder interface {
	Start(timeslice time.Duration) error
	Data() <-chan []byte
	Stop() error
	Err() error
}

// Camera is the platform camera and recording provider.
type Camera interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
	IsTypeSupported(mimeType string) bool
	NewRecorder(s Stream, opts RecorderOptions) (Recorder, error)
}

type Capturer struct {
	camera    Camera
	timeslice time.Duration
	now       func() time.Time
}

func NewCapturer(camera Camera) *Capturer {
	return &Capturer{camera: camera, timeslice: DefaultTimeslice, now: time.Now}
}

// MimeType returns the codec the recorder will be asked for.
func (c *Capturer) MimeType() string {
	if c.camera.IsTypeSupported(PrimaryMimeType) {
		return PrimaryMimeType
	}
	return SecondaryMimeType
}

// CaptureVideo records duration worth of video from the camera facing
// direction. The stream is released before returning on every path once
// it has been acquired.
func (c *Capturer) CaptureVideo(ctx context.Context, direction models.Direction, duration time.Duration, q Quality) (models.VideoCapture, error) {
	v, err := c.capture(ctx, direction, duration, q)
	if err != nil {
		return models.VideoCapture{}, errors.Wrapf(err, "Failed to capture %s video", direction)
	}
	return v, nil
}

func (c *Capturer) capture(ctx context.Context, direction models.Direction, duration time.Duration, q Quality) (models.VideoCapture, error) {
	stream, err := c.camera.Acquire(ctx, Constraints{
		Direction: direction,
		Width:     q.Width,
		Height:    q.Height,
		FrameRate: q.FrameRate,
	})
	if err != nil {
		return models.VideoCapture{}, err
	}
	defer stream.Stop()

	mimeType := c.MimeType()
	payload, err := c.record(ctx, stream, duration, RecorderOptions{MimeType: mimeType, BitsPerSecond: q.Bitrate})
	if err != nil {
		return models.VideoCapture{}, err
	}
	if len(payload) == 0 {
		return models.VideoCapture{}, errEmptyRecording
	}
	log.Infof("Recorded %d bytes of %s from the %s camera", len(payload), mimeType, direction)

	return models.VideoCapture{
		Direction:  direction,
		Data:       EncodePayload(payload),
		MimeType:   mimeType,
		CapturedAt: c.now().UTC(),
		Resolution: q.Resolution(),
		Duration:   DurationLabel(duration),
	}, nil
}

// record runs the recorder for duration of wall-clock time and returns the
// concatenated chunks.
func (c *Capturer) record(ctx context.Context, stream Stream, duration time.Duration, opts RecorderOptions) ([]byte, error) {
	rec, err := c.camera.NewRecorder(stream, opts)
	if err != nil {
		return nil, err
	}
	if err := rec.Start(c.timeslice); err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	var chunks [][]byte
	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		if err := rec.Stop(); err != nil {
			log.Warnf("Stopping recorder: %v", err)
		}
	}
	done := ctx.Done()

	for {
		select {
		case chunk, ok := <-rec.Data():
			if !ok {
				if err := rec.Err(); err != nil {
					return nil, errors.Wrap(err, "Recording failed")
				}
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return bytes.Join(chunks, nil), nil
			}
			if len(chunk) > 0 {
				chunks = append(chunks, chunk)
			}
		case <-timer.C:
			stop()
		case <-done:
			done = nil
			stop()
		}
	}
}

// DurationLabel renders a clip length as whole or fractional seconds, e.g. "5s".
func DurationLabel(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}
