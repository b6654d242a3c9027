package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"device-report/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeStream struct {
	mu    sync.Mutex
	stops int
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeRecorder struct {
	chunks   [][]byte
	err      error
	startErr error

	data      chan []byte
	stopOnce  sync.Once
	stoppedAt time.Time
}

func (r *fakeRecorder) Start(time.Duration) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.data = make(chan []byte, len(r.chunks))
	for _, c := range r.chunks {
		r.data <- c
	}
	return nil
}

func (r *fakeRecorder) Data() <-chan []byte { return r.data }

func (r *fakeRecorder) Stop() error {
	r.stopOnce.Do(func() {
		r.stoppedAt = time.Now()
		close(r.data)
	})
	return nil
}

func (r *fakeRecorder) Err() error { return r.err }

type fakeCamera struct {
	stream      *fakeStream
	acquireErr  error
	recorder    *fakeRecorder
	recorderErr error
	supported   map[string]bool

	constraints Constraints
	opts        RecorderOptions
}

func (c *fakeCamera) Acquire(_ context.Context, cs Constraints) (Stream, error) {
	c.constraints = cs
	if c.acquireErr != nil {
		return nil, c.acquireErr
	}
	return c.stream, nil
}

func (c *fakeCamera) IsTypeSupported(mimeType string) bool {
	return c.supported[mimeType]
}

func (c *fakeCamera) NewRecorder(_ Stream, opts RecorderOptions) (Recorder, error) {
	c.opts = opts
	if c.recorderErr != nil {
		return nil, c.recorderErr
	}
	return c.recorder, nil
}

var quality = Quality{Width: 1280, Height: 720, FrameRate: 25, Bitrate: 1500000}

func TestCaptureVideo(t *testing.T) {
	defer goleak.VerifyNone(t)

	cam := &fakeCamera{
		stream:    &fakeStream{},
		recorder:  &fakeRecorder{chunks: [][]byte{[]byte("abc"), {}, []byte("def")}},
		supported: map[string]bool{PrimaryMimeType: true},
	}
	c := NewCapturer(cam)

	started := time.Now()
	v, err := c.CaptureVideo(context.Background(), models.DirectionBack, 30*time.Millisecond, quality)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, cam.recorder.stoppedAt.Sub(started), 30*time.Millisecond)
	assert.Equal(t, 1, cam.stream.stopCount())
	assert.Equal(t, models.DirectionBack, v.Direction)
	assert.Equal(t, PrimaryMimeType, v.MimeType)
	assert.Equal(t, "1280x720", v.Resolution)
	assert.Equal(t, "0.03s", v.Duration)
	assert.Equal(t, Constraints{Direction: models.DirectionBack, Width: 1280, Height: 720, FrameRate: 25}, cam.constraints)
	assert.Equal(t, RecorderOptions{MimeType: PrimaryMimeType, BitsPerSecond: 1500000}, cam.opts)

	payload, err := DecodePayload(v.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), payload)
}

func TestCaptureVideoCodecProbe(t *testing.T) {
	cam := &fakeCamera{
		stream:    &fakeStream{},
		recorder:  &fakeRecorder{chunks: [][]byte{[]byte("x")}},
		supported: map[string]bool{},
	}
	v, err := NewCapturer(cam).CaptureVideo(context.Background(), models.DirectionFront, time.Millisecond, quality)
	require.NoError(t, err)
	assert.Equal(t, SecondaryMimeType, v.MimeType)
	assert.Equal(t, SecondaryMimeType, cam.opts.MimeType)
}

func TestCaptureVideoReleasesStreamOnFailure(t *testing.T) {
	testCases := []struct {
		name     string
		camera   func() *fakeCamera
		contains string
	}{
		{
			name: "recording error",
			camera: func() *fakeCamera {
				return &fakeCamera{stream: &fakeStream{}, recorder: &fakeRecorder{chunks: [][]byte{[]byte("x")}, err: errors.New("NotReadableError")}}
			},
			contains: "Failed to capture front video: Recording failed: NotReadableError",
		}, {
			name: "recorder construction",
			camera: func() *fakeCamera {
				return &fakeCamera{stream: &fakeStream{}, recorderErr: errors.New("NotSupportedError")}
			},
			contains: "Failed to capture front video: NotSupportedError",
		}, {
			name: "recorder start",
			camera: func() *fakeCamera {
				return &fakeCamera{stream: &fakeStream{}, recorder: &fakeRecorder{startErr: errors.New("InvalidStateError")}}
			},
			contains: "InvalidStateError",
		}, {
			name: "empty recording",
			camera: func() *fakeCamera {
				return &fakeCamera{stream: &fakeStream{}, recorder: &fakeRecorder{chunks: [][]byte{{}}}}
			},
			contains: "Invalid video data format",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cam := tc.camera()
			_, err := NewCapturer(cam).CaptureVideo(context.Background(), models.DirectionFront, 5*time.Millisecond, quality)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
			assert.Equal(t, 1, cam.stream.stopCount())
		})
	}
}

func TestCaptureVideoAcquireFailure(t *testing.T) {
	cam := &fakeCamera{acquireErr: errors.New("NotAllowedError")}
	_, err := NewCapturer(cam).CaptureVideo(context.Background(), models.DirectionBack, time.Millisecond, quality)
	assert.EqualError(t, err, "Failed to capture back video: NotAllowedError")
}

func TestCaptureVideoCancelled(t *testing.T) {
	cam := &fakeCamera{stream: &fakeStream{}, recorder: &fakeRecorder{chunks: [][]byte{[]byte("x")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCapturer(cam).CaptureVideo(ctx, models.DirectionFront, time.Hour, quality)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, cam.stream.stopCount())
}

func TestPayloadRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x1A, 0x45, 0xDF, 0xA3},
		bytes.Repeat([]byte{0x00, 0xFF, 0x7F}, 1000),
	}
	for _, p := range payloads {
		out, err := DecodePayload(EncodePayload(p))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(p, out))
	}

	out, err := DecodePayload("data:video/webm;base64," + EncodePayload([]byte("clip")))
	require.NoError(t, err)
	assert.Equal(t, []byte("clip"), out)

	_, err = DecodePayload("!!not base64!!")
	assert.Error(t, err)
}
