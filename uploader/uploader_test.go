package uploader

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"device-report/capture"
	"device-report/models"
	"device-report/telegram"

	"github.com/jknair0/beforeeach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	messages   []string
	videos     []telegram.Video
	messageErr []error
	videoErr   map[string]error
}

func (m *fakeMessenger) SendMessage(_ context.Context, text string) error {
	m.messages = append(m.messages, text)
	if len(m.messageErr) > 0 {
		err := m.messageErr[0]
		m.messageErr = m.messageErr[1:]
		return err
	}
	return nil
}

func (m *fakeMessenger) SendVideo(_ context.Context, v telegram.Video) error {
	m.videos = append(m.videos, v)
	return m.videoErr[v.Filename]
}

var (
	messenger *fakeMessenger
	report    *models.Report
)

func setUp() {
	messenger = &fakeMessenger{videoErr: map[string]error{}}
	report = models.NewReport("run-1", "alice", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
}

func tearDown() {
	messenger = nil
	report = nil
}

var it = beforeeach.Create(setUp, tearDown)

func clip(d models.Direction, payload string) models.VideoCapture {
	return models.VideoCapture{
		Direction:  d,
		Data:       capture.EncodePayload([]byte(payload)),
		MimeType:   capture.SecondaryMimeType,
		Resolution: "1280x720",
		Duration:   "5s",
	}
}

func TestUploadFirstVideoFails(t *testing.T) {
	it(func() {
		report.AddVideo(clip(models.DirectionFront, "front-bytes"))
		report.AddVideo(clip(models.DirectionBack, "back-bytes"))
		messenger.videoErr["front_camera.webm"] = errors.New("Bad Request: file too big")

		require.NoError(t, New(messenger).Upload(context.Background(), report))

		assert.True(t, report.Errors.Has("video_send_0"))
		assert.False(t, report.Errors.Has("video_send_1"))
		msg, _ := report.Errors.Get("video_send_0")
		assert.Equal(t, "Failed to send front video: Bad Request: file too big", msg)

		require.Len(t, messenger.videos, 2)
		assert.Equal(t, "back_camera.webm", messenger.videos[1].Filename)
		assert.Equal(t, []byte("back-bytes"), messenger.videos[1].Data)
		assert.Equal(t, "Back camera verification\nUser: alice\nResolution: 1280x720\nDuration: 5s", messenger.videos[1].Caption)

		require.Len(t, messenger.messages, 2)
		assert.Equal(t, "*Video Send Issues for* alice*:*\n- 0: Failed to send front video: Bad Request: file too big", messenger.messages[1])
	})
}

func TestUploadAllVideosSent(t *testing.T) {
	it(func() {
		report.AddVideo(clip(models.DirectionFront, "front-bytes"))

		require.NoError(t, New(messenger).Upload(context.Background(), report))
		assert.Len(t, messenger.messages, 1)
		assert.Len(t, messenger.videos, 1)
		assert.Equal(t, 0, report.Errors.Len())
	})
}

func TestUploadTextFailureIsFatal(t *testing.T) {
	it(func() {
		report.AddVideo(clip(models.DirectionFront, "front-bytes"))
		messenger.messageErr = []error{errors.New("Unauthorized")}

		err := New(messenger).Upload(context.Background(), report)
		require.Error(t, err)
		assert.Equal(t, "Failed to send data to Telegram: Unauthorized", err.Error())
		assert.Empty(t, messenger.videos)
	})
}

func TestUploadSummaryFailureIsLogged(t *testing.T) {
	it(func() {
		report.AddVideo(clip(models.DirectionFront, ""))
		messenger.messageErr = []error{nil, errors.New("Too Many Requests")}

		require.NoError(t, New(messenger).Upload(context.Background(), report))
		msg, _ := report.Errors.Get("video_send_0")
		assert.Equal(t, "Failed to send front video: Empty video data", msg)
		assert.Empty(t, messenger.videos)
		assert.Len(t, messenger.messages, 2)
	})
}

func TestUploadInvalidPayload(t *testing.T) {
	it(func() {
		report.AddVideo(models.VideoCapture{Direction: models.DirectionBack, Data: "%%%"})
		report.AddVideo(clip(models.DirectionFront, "ok"))

		New(messenger).UploadVideos(context.Background(), report)
		msg, _ := report.Errors.Get("video_send_0")
		assert.True(t, strings.HasPrefix(msg, "Failed to send back video: Invalid base64 video data"))
		assert.Len(t, messenger.videos, 1)
	})
}

func TestRender(t *testing.T) {
	it(func() {
		text := Render(report)
		assert.True(t, strings.HasPrefix(text, "*Device Verification Report*\n\n*Username:* alice\n"))
		assert.Contains(t, text, "*Status:* Location not verified\n")
		assert.Contains(t, text, "*Videos Recorded:*\nNone\n")
		assert.True(t, strings.HasSuffix(text, "*Errors encountered:*\nNone"))
		assert.NotContains(t, text, "*IP Address:*")
		assert.NotContains(t, text, "*GPS Location:*")
		assert.NotContains(t, text, "*System Information:*")
	})
}

func TestRenderFullReport(t *testing.T) {
	it(func() {
		r := models.NewReport("run-2", "  ", time.Now())
		r.LocationStatus = "Approved. Device is inside the approved network"
		r.IPInfo = &models.IPInfo{IP: "203.0.113.5", ISP: "AS64500 Example_Net"}
		r.Location = models.NewLocation(43.85, 18.41, 12)
		r.Address = "Ferhadija 1, Sarajevo"
		r.Premises = &models.PremisesCheck{DistanceMeters: 42.4, RadiusMeters: 150, Inside: true}
		r.Battery = &models.BatteryStatus{Level: 0.5, Charging: true}
		r.Network = &models.NetworkStatus{Type: "wifi", EffectiveType: "4g", DownlinkMbps: 10}
		r.AddVideo(clip(models.DirectionBack, "x"))
		r.AddError("camera_front", errors.New("Failed to capture front video: device busy"))

		text := Render(r)
		assert.Contains(t, text, "*Username:* anonymous\\_User\n")
		assert.Contains(t, text, "*Status:* Approved. Device is inside the approved network\n")
		assert.Contains(t, text, "*ISP:* AS64500 Example\\_Net\n")
		assert.Contains(t, text, "- Accuracy: 12 meters (GPS)\n")
		assert.Contains(t, text, "- [Google Maps](https://www.google.com/maps?q=43.85,18.41)\n")
		assert.Contains(t, text, "- Address: Ferhadija 1, Sarajevo\n")
		assert.Contains(t, text, "- Premises: 42 m from centre, inside the 150 m radius\n")
		assert.Contains(t, text, "- Battery: 50% (Charging)\n")
		assert.Contains(t, text, "- Network: 4g (wifi), downlink 10 Mbps\n")
		assert.Contains(t, text, "- back camera (1280x720, 5s)\n")
		assert.Contains(t, text, "- camera\\_front: Failed to capture front video: device busy")
	})
}

func TestRenderVideoIssuesEscapedIdentity(t *testing.T) {
	it(func() {
		r := models.NewReport("run-3", "field_agent*1", time.Now())
		r.AddError(models.VideoSendKey(1), errors.New("Failed to send back video: timeout"))

		text := renderVideoIssues(r)
		assert.Equal(t, "*Video Send Issues for* field\\_agent\\*1*:*\n- 1: Failed to send back video: timeout", text)
	})
}
