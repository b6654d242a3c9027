package platform

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"device-report/capture"
	"device-report/models"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// encoding is how a recorder MIME type maps onto ffmpeg.
type encoding struct {
	encoder string
	format  string
	extra   []string
}

var encodings = map[string]encoding{
	capture.PrimaryMimeType:   {encoder: "libx264", format: "matroska", extra: []string{"-preset", "veryfast", "-tune", "zerolatency"}},
	capture.SecondaryMimeType: {encoder: "libvpx-vp9", format: "webm", extra: []string{"-deadline", "realtime", "-cpu-used", "8"}},
}

const readBufferSize = 32 * 1024

// FFmpeg records from V4L2 devices by running ffmpeg and streaming its
// output.
type FFmpeg struct {
	Path    string
	Devices map[models.Direction]string

	probeOnce sync.Once
	encoders  map[string]bool
}

func NewFFmpeg(path, frontDevice, backDevice string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{
		Path: path,
		Devices: map[models.Direction]string{
			models.DirectionFront: frontDevice,
			models.DirectionBack:  backDevice,
		},
	}
}

// Available reports whether the ffmpeg binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

type deviceStream struct {
	device string
	c      capture.Constraints

	mu       sync.Mutex
	recorder *ffmpegRecorder
	released bool
}

// Stop releases the device by interrupting any recording still running.
func (s *deviceStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if s.recorder != nil {
		if err := s.recorder.Stop(); err != nil {
			log.Warnf("Releasing %s: %v", s.device, err)
		}
	}
}

func (f *FFmpeg) Acquire(_ context.Context, c capture.Constraints) (capture.Stream, error) {
	device := f.Devices[c.Direction]
	if device == "" {
		return nil, fmt.Errorf("no %s camera configured", c.Direction)
	}
	if _, err := os.Stat(device); err != nil {
		return nil, errors.Wrapf(err, "opening %s", device)
	}
	return &deviceStream{device: device, c: c}, nil
}

// IsTypeSupported probes `ffmpeg -encoders` once for the encoder behind
// mimeType.
func (f *FFmpeg) IsTypeSupported(mimeType string) bool {
	enc, ok := encodings[mimeType]
	if !ok {
		return false
	}
	f.probeOnce.Do(func() {
		out, err := exec.Command(f.Path, "-hide_banner", "-encoders").Output()
		if err != nil {
			log.Warnf("Probing ffmpeg encoders: %v", err)
		}
		f.encoders = parseEncoders(out)
	})
	return f.encoders[enc.encoder]
}

// parseEncoders reads the encoder names from `ffmpeg -encoders` output,
// whose rows look like " V....D libx264   libx264 H.264 ...".
func parseEncoders(out []byte) map[string]bool {
	found := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	inList := false
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if !inList {
			inList = strings.HasPrefix(fields[0], "---")
			continue
		}
		found[fields[1]] = true
	}
	return found
}

func (f *FFmpeg) NewRecorder(s capture.Stream, opts capture.RecorderOptions) (capture.Recorder, error) {
	stream, ok := s.(*deviceStream)
	if !ok {
		return nil, errors.New("stream was not acquired from ffmpeg")
	}
	enc, ok := encodings[opts.MimeType]
	if !ok {
		return nil, fmt.Errorf("unsupported recording type %q", opts.MimeType)
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.released {
		return nil, errors.New("stream already released")
	}
	rec := &ffmpegRecorder{
		path: f.Path,
		args: recordArgs(stream.device, stream.c, enc, opts.BitsPerSecond),
		data: make(chan []byte, 16),
	}
	stream.recorder = rec
	return rec, nil
}

func recordArgs(device string, c capture.Constraints, enc encoding, bitrate int) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if c.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(c.FrameRate))
	}
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	args = append(args, "-i", device, "-an", "-c:v", enc.encoder)
	args = append(args, enc.extra...)
	if bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(bitrate))
	}
	return append(args, "-f", enc.format, "pipe:1")
}

type ffmpegRecorder struct {
	path string
	args []string
	data chan []byte

	mu      sync.Mutex
	cmd     *exec.Cmd
	stderr  bytes.Buffer
	stopped bool
	err     error
}

// Start launches ffmpeg and hands over its output every timeslice.
func (r *ffmpegRecorder) Start(timeslice time.Duration) error {
	cmd := exec.Command(r.path, r.args...)
	cmd.Stderr = &r.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "starting ffmpeg")
	}
	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	raw := make(chan []byte)
	go readChunks(stdout, raw)
	go r.pump(raw, timeslice)
	return nil
}

func readChunks(rd io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, readBufferSize)
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			return
		}
	}
}

// pump batches raw output into one chunk per timeslice and closes data
// once ffmpeg has exited.
func (r *ffmpegRecorder) pump(raw <-chan []byte, timeslice time.Duration) {
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			r.data <- pending
			pending = nil
		}
	}
	for {
		select {
		case chunk, ok := <-raw:
			if !ok {
				flush()
				r.finish()
				close(r.data)
				return
			}
			pending = append(pending, chunk...)
		case <-ticker.C:
			flush()
		}
	}
}

func (r *ffmpegRecorder) finish() {
	err := r.cmd.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	// ffmpeg exits non-zero after an interrupt even when the file was
	// finalised.
	if err != nil && !r.stopped {
		msg := strings.TrimSpace(r.stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		r.err = errors.New(msg)
	}
}

func (r *ffmpegRecorder) Data() <-chan []byte {
	return r.data
}

// Stop interrupts ffmpeg so it finalises the container. Safe to call more
// than once.
func (r *ffmpegRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.cmd == nil || r.cmd.Process == nil {
		r.stopped = true
		return nil
	}
	r.stopped = true
	if err := r.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (r *ffmpegRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
