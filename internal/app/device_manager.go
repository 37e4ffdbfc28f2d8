package app

import (
	"fmt"
	"io"

	"github.com/emmett/voxtask/internal/audio"
)

// DeviceManager handles capture device selection and listing
type DeviceManager struct {
	out  io.Writer
	list func() ([]audio.DeviceInfo, error)
}

// NewDeviceManager creates a DeviceManager printing to out
func NewDeviceManager(out io.Writer) *DeviceManager {
	return &DeviceManager{out: out, list: audio.ListDevices}
}

// ListDevices prints all available capture devices
func (dm *DeviceManager) ListDevices() error {
	devices, err := dm.list()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(dm.out, "No audio capture devices found.")
		return fmt.Errorf("%w: no devices found", audio.ErrAudioUnavailable)
	}

	fmt.Fprintf(dm.out, "Found %d capture device(s):\n\n", len(devices))
	for i, device := range devices {
		marker := ""
		if device.IsDefault {
			marker = " [DEFAULT]"
		}
		fmt.Fprintf(dm.out, "%d. %s%s\n", i+1, device.Name, marker)
	}

	fmt.Fprintln(dm.out)
	fmt.Fprintln(dm.out, "To use a specific device, run:")
	fmt.Fprintf(dm.out, "  voxtask listen --device %q\n", devices[0].Name)
	return nil
}

// SelectDevice finds a device by (fuzzy) name, or returns the default
// device when name is empty
func (dm *DeviceManager) SelectDevice(name string) (*audio.DeviceInfo, error) {
	devices, err := dm.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if name == "" {
		device, err := audio.DefaultDevice(devices)
		if err != nil {
			return nil, err
		}
		return device, nil
	}

	device, err := audio.FindDeviceByName(devices, name)
	if err != nil {
		fmt.Fprintln(dm.out, "Available devices:")
		for i, d := range devices {
			fmt.Fprintf(dm.out, "  %d. %s\n", i+1, d.Name)
		}
		return nil, fmt.Errorf("invalid audio device specified: %w", err)
	}
	return device, nil
}
