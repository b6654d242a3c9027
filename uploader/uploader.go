// Package uploader delivers a finished report and its videos to the
// messaging transport.
package uploader

import (
	"context"
	"fmt"

	"device-report/capture"
	"device-report/metrics"
	"device-report/models"
	"device-report/telegram"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

var errEmptyVideo = errors.New("Empty video data")

// Messenger is the transport the report is sent through.
type Messenger interface {
	SendMessage(ctx context.Context, text string) error
	SendVideo(ctx context.Context, v telegram.Video) error
}

type Uploader struct {
	m Messenger
}

func New(m Messenger) *Uploader {
	return &Uploader{m: m}
}

// Upload sends the report text, then every video, then a summary of the
// videos that failed. Only a failure to send the text is returned; the
// videos are not attempted in that case.
func (u *Uploader) Upload(ctx context.Context, r *models.Report) error {
	if err := u.m.SendMessage(ctx, Render(r)); err != nil {
		return fmt.Errorf("Failed to send data to Telegram: %w", err)
	}

	u.UploadVideos(ctx, r)

	if summary := renderVideoIssues(r); summary != "" {
		if err := u.m.SendMessage(ctx, summary); err != nil {
			log.WithField("run_id", r.RunID).Errorf("Failed to send video issue summary: %v", err)
		}
	}
	return nil
}

// UploadVideos sends each video in capture order. A failed video is recorded
// under its video_send_ key and the rest are still sent.
func (u *Uploader) UploadVideos(ctx context.Context, r *models.Report) {
	for i, v := range r.Videos {
		if err := u.sendVideo(ctx, r, v); err != nil {
			r.AddError(models.VideoSendKey(i), fmt.Errorf("Failed to send %s video: %v", v.Direction, err))
			log.WithFields(log.Fields{"run_id": r.RunID, "video": i}).Errorf("Error sending video: %v", err)
			metrics.VideoUploadsTotal.WithLabelValues("failed").Inc()
			continue
		}
		metrics.VideoUploadsTotal.WithLabelValues("sent").Inc()
	}
}

func (u *Uploader) sendVideo(ctx context.Context, r *models.Report, v models.VideoCapture) error {
	data, err := capture.DecodePayload(v.Data)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errEmptyVideo
	}
	return u.m.SendVideo(ctx, telegram.Video{
		Filename: fmt.Sprintf("%s_camera.webm", v.Direction),
		Data:     data,
		Caption:  caption(r, v),
	})
}
