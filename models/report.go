package models

import (
	"strconv"
	"strings"
	"time"
)

const AnonymousIdentity = "anonymous_User"

// Error keys used by the report builder and the uploader.
const (
	ErrKeyBattery  = "battery"
	ErrKeyNetwork  = "network"
	ErrKeyIPInfo   = "ipInfo"
	ErrKeyLocation = "location"
	ErrKeyCamera   = "camera"

	videoSendPrefix = "video_send_"
)

// Report is the record assembled by a single run. It is created by the run
// controller, filled in stage by stage and dropped when the run ends.
type Report struct {
	RunID     string    `json:"run_id"`
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`

	Errors   *FieldErrors   `json:"errors"`
	Warnings []string       `json:"warnings"`
	Videos   []VideoCapture `json:"videos"`

	Battery        *BatteryStatus `json:"battery,omitempty"`
	Network        *NetworkStatus `json:"network,omitempty"`
	IPInfo         *IPInfo        `json:"ip_info,omitempty"`
	LocationStatus string         `json:"location_status,omitempty"`
	Location       *Location      `json:"location,omitempty"`
	Premises       *PremisesCheck `json:"premises,omitempty"`
	Address        string         `json:"address,omitempty"`
}

// NewReport returns an empty report. A blank identity is replaced with
// AnonymousIdentity.
func NewReport(runID, identity string, createdAt time.Time) *Report {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = AnonymousIdentity
	}
	return &Report{
		RunID:     runID,
		Identity:  identity,
		CreatedAt: createdAt,
		Errors:    NewFieldErrors(),
		Warnings:  []string{},
		Videos:    []VideoCapture{},
	}
}

// AddError records err under key unless the key already holds a value.
func (r *Report) AddError(key string, err error) {
	if err == nil {
		return
	}
	r.Errors.Add(key, err.Error())
}

func (r *Report) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *Report) AddVideo(v VideoCapture) {
	r.Videos = append(r.Videos, v)
}

// VideoSendKey is the error key for the video at index i.
func VideoSendKey(i int) string {
	return videoSendPrefix + strconv.Itoa(i)
}

// IsVideoSendKey reports whether key belongs to the video_send_ namespace.
func IsVideoSendKey(key string) bool {
	return strings.HasPrefix(key, videoSendPrefix)
}

// VideoSendIndex returns the index part of a video_send_ key.
func VideoSendIndex(key string) string {
	return strings.TrimPrefix(key, videoSendPrefix)
}

// CameraKey is the error key for a failed capture direction.
func CameraKey(d Direction) string {
	return ErrKeyCamera + "_" + string(d)
}

// IsCameraKey reports whether key is any camera-category error.
func IsCameraKey(key string) bool {
	return key == ErrKeyCamera || strings.HasPrefix(key, ErrKeyCamera+"_")
}
