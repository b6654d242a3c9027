package capture

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

// EncodePayload converts a recording to its base64 text form.
func EncodePayload(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodePayload reverses EncodePayload. A data URL prefix such as
// "data:video/webm;base64," is accepted and stripped.
func DecodePayload(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ";base64,"); i >= 0 {
			s = s[i+len(";base64,"):]
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "Invalid base64 video data")
	}
	return b, nil
}
