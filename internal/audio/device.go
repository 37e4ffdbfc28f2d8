package audio

import (
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
	"github.com/sahilm/fuzzy"
)

// DeviceInfo contains information about a capture device
type DeviceInfo struct {
	Index     int    // Position in the backend's capture device list
	Name      string // Human-readable device name
	IsDefault bool   // Whether this is the default device
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	defaultMarker := ""
	if d.IsDefault {
		defaultMarker = " [DEFAULT]"
	}
	return fmt.Sprintf("capture-%d: %s%s", d.Index, d.Name, defaultMarker)
}

// ListDevices returns all available capture devices
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize malgo context: %v", ErrAudioUnavailable, err)
	}
	defer releaseContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      info.Name(),
			IsDefault: info.IsDefault > 0,
		})
	}
	return devices, nil
}

// DefaultDevice picks the default device, falling back to the first one
func DefaultDevice(devices []DeviceInfo) (*DeviceInfo, error) {
	for i := range devices {
		if devices[i].IsDefault {
			return &devices[i], nil
		}
	}
	if len(devices) > 0 {
		return &devices[0], nil
	}
	return nil, fmt.Errorf("%w: no capture devices found", ErrAudioUnavailable)
}

// FindDeviceByName finds a device by name: exact (case-insensitive) match
// first, then the best fuzzy match.
func FindDeviceByName(devices []DeviceInfo, name string) (*DeviceInfo, error) {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	idx := matchDevice(name, names)
	if idx < 0 {
		return nil, fmt.Errorf("no device found matching name: %s", name)
	}
	return &devices[idx], nil
}

// matchDevice returns the index of the name best matching query, or -1
func matchDevice(query string, names []string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return -1
	}
	for i, n := range names {
		if strings.ToLower(n) == q {
			return i
		}
	}
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}
	matches := fuzzy.Find(q, lowered)
	if len(matches) == 0 {
		return -1
	}
	return matches[0].Index
}
