package platform

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"device-report/models"

	"github.com/pkg/errors"
)

// PowerSupply reads the first battery under a sysfs power_supply class
// directory.
type PowerSupply struct {
	Root string
}

func NewPowerSupply(root string) *PowerSupply {
	return &PowerSupply{Root: root}
}

func (p *PowerSupply) Battery(_ context.Context) (models.BatteryStatus, error) {
	supplies, err := listDir(p.Root)
	if err != nil {
		return models.BatteryStatus{}, err
	}
	for _, name := range supplies {
		dir := filepath.Join(p.Root, name)
		if t, _ := readAttr(dir, "type"); t != "Battery" {
			continue
		}
		capacity, err := readAttr(dir, "capacity")
		if err != nil {
			return models.BatteryStatus{}, errors.Wrapf(err, "reading %s capacity", name)
		}
		pct, err := strconv.Atoi(capacity)
		if err != nil {
			return models.BatteryStatus{}, errors.Wrapf(err, "parsing %s capacity", name)
		}
		status, _ := readAttr(dir, "status")
		return models.BatteryStatus{
			Level:    clampFraction(float64(pct) / 100),
			Charging: status == "Charging" || status == "Full",
		}, nil
	}
	return models.BatteryStatus{}, ErrUnsupported
}

// NetClass reports the first interface that is up under a sysfs net class
// directory.
type NetClass struct {
	Root string
}

func NewNetClass(root string) *NetClass {
	return &NetClass{Root: root}
}

func (n *NetClass) Network(_ context.Context) (models.NetworkStatus, error) {
	ifaces, err := listDir(n.Root)
	if err != nil {
		return models.NetworkStatus{}, err
	}
	for _, name := range ifaces {
		if name == "lo" {
			continue
		}
		dir := filepath.Join(n.Root, name)
		if state, _ := readAttr(dir, "operstate"); state != "up" {
			continue
		}

		status := models.NetworkStatus{Type: "ethernet"}
		if _, err := os.Stat(filepath.Join(dir, "wireless")); err == nil {
			status.Type = "wifi"
		}
		// speed is unreadable or -1 on many wireless drivers.
		if speed, err := readAttr(dir, "speed"); err == nil {
			if mbps, err := strconv.ParseFloat(speed, 64); err == nil && mbps > 0 {
				status.DownlinkMbps = mbps
			}
		}
		status.EffectiveType = effectiveType(status.DownlinkMbps)
		return status, nil
	}
	return models.NetworkStatus{Type: "none", EffectiveType: "unknown"}, nil
}

// effectiveType buckets a downlink estimate the way browsers do.
func effectiveType(mbps float64) string {
	switch {
	case mbps <= 0:
		return "unknown"
	case mbps < 0.05:
		return "slow-2g"
	case mbps < 0.07:
		return "2g"
	case mbps < 0.7:
		return "3g"
	default:
		return "4g"
	}
}

// listDir returns the sorted entry names of root, or ErrUnsupported when
// root does not exist.
func listDir(root string) ([]string, error) {
	if root == "" {
		return nil, ErrUnsupported
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", root)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func readAttr(dir, name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
