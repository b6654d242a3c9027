package uploader

import (
	"fmt"
	"strings"

	"device-report/models"
)

const (
	Title             = "Device Verification Report"
	StatusNotVerified = "Location not verified"

	timeLayout = "2006-01-02 15:04:05 MST"
)

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// escape makes s safe inside a legacy Markdown message.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

// Render formats r as the Markdown text message. Sections with no data are
// left out.
func Render(r *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*%s*\n\n", Title)
	fmt.Fprintf(&b, "*Username:* %s\n", escape(r.Identity))
	fmt.Fprintf(&b, "*Time:* %s\n", r.CreatedAt.Local().Format(timeLayout))

	status := r.LocationStatus
	if status == "" {
		status = StatusNotVerified
	}
	fmt.Fprintf(&b, "*Status:* %s\n", escape(status))

	if ip := r.IPInfo; ip != nil {
		fmt.Fprintf(&b, "*IP Address:* %s\n", escape(ip.IP))
		fmt.Fprintf(&b, "*ISP:* %s\n", escape(ip.ISP))
	}

	if loc := r.Location; loc != nil {
		b.WriteString("*GPS Location:*\n")
		fmt.Fprintf(&b, "- Latitude: %v\n", loc.Latitude)
		fmt.Fprintf(&b, "- Longitude: %v\n", loc.Longitude)
		fmt.Fprintf(&b, "- Accuracy: %s (%s)\n", loc.Accuracy(), loc.Source)
		fmt.Fprintf(&b, "- [Google Maps](%s)\n", loc.MapsURL)
		if r.Address != "" {
			fmt.Fprintf(&b, "- Address: %s\n", escape(r.Address))
		}
		if p := r.Premises; p != nil {
			where := "outside"
			if p.Inside {
				where = "inside"
			}
			fmt.Fprintf(&b, "- Premises: %s from centre, %s the %v m radius\n", p.Distance(), where, p.RadiusMeters)
		}
	}

	if r.Battery != nil || r.Network != nil {
		b.WriteString("\n*System Information:*\n")
		if bat := r.Battery; bat != nil {
			charging := ""
			if bat.Charging {
				charging = " (Charging)"
			}
			fmt.Fprintf(&b, "- Battery: %s%s\n", bat.LevelPercent(), charging)
		}
		if n := r.Network; n != nil {
			fmt.Fprintf(&b, "- Network: %s (%s), downlink %s\n", escape(n.EffectiveType), escape(n.Type), n.Downlink())
		}
	}

	b.WriteString("\n*Videos Recorded:*\n")
	if len(r.Videos) == 0 {
		b.WriteString("None\n")
	}
	for _, v := range r.Videos {
		fmt.Fprintf(&b, "- %s camera (%s, %s)\n", v.Direction, v.Resolution, v.Duration)
	}

	b.WriteString("\n*Errors encountered:*\n")
	if r.Errors.Len() == 0 {
		b.WriteString("None")
	}
	lines := make([]string, 0, r.Errors.Len())
	for _, k := range r.Errors.Keys() {
		msg, _ := r.Errors.Get(k)
		lines = append(lines, fmt.Sprintf("- %s: %s", escape(k), escape(msg)))
	}
	b.WriteString(strings.Join(lines, "\n"))

	return b.String()
}

// renderVideoIssues lists the video_send_ errors of r, or returns "" when
// there are none.
func renderVideoIssues(r *models.Report) string {
	keys := r.Errors.Filter(models.IsVideoSendKey)
	if len(keys) == 0 {
		return ""
	}
	var b strings.Builder
	// The identity stays outside the bold entity: its escapes would end it.
	fmt.Fprintf(&b, "*Video Send Issues for* %s*:*", escape(r.Identity))
	for _, k := range keys {
		msg, _ := r.Errors.Get(k)
		fmt.Fprintf(&b, "\n- %s: %s", models.VideoSendIndex(k), escape(msg))
	}
	return b.String()
}

func caption(r *models.Report, v models.VideoCapture) string {
	return fmt.Sprintf("%s camera verification\nUser: %s\nResolution: %s\nDuration: %s",
		v.Direction.Title(), r.Identity, v.Resolution, v.Duration)
}
