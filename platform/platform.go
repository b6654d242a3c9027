// Package platform implements the device providers on a Linux host: sysfs
// for battery and network state, gpsd for position and ffmpeg for cameras.
package platform

import "errors"

// ErrUnsupported is returned when the host lacks a capability altogether.
var ErrUnsupported = errors.New("not supported on this platform")
