package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/hearken/internal/errors"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index   int
	Name    string
	ID      string
	Default bool
}

// backendFor returns the miniaudio backend for name or, when empty, the
// usual backend for this OS.
func backendFor(name string) (malgo.Backend, error) {
	switch strings.ToLower(name) {
	case "alsa":
		return malgo.BackendAlsa, nil
	case "pulseaudio", "pulse":
		return malgo.BackendPulseaudio, nil
	case "wasapi":
		return malgo.BackendWasapi, nil
	case "coreaudio":
		return malgo.BackendCoreaudio, nil
	case "null":
		return malgo.BackendNull, nil
	case "":
	default:
		return malgo.BackendNull, errors.Newf("unknown audio backend %q", name).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}

	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("audiocore").
			Category(errors.CategoryDevice).
			Build()
	}
}

// ListDevices returns the capture devices visible to the backend, skipping
// the discard device.
func ListDevices(backendName string) ([]DeviceInfo, error) {
	backend, err := backendFor(backendName)
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryDevice).
			Context("operation", "init_context").
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	return describe(infos), nil
}

func describe(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		if strings.Contains(name, "Discard all samples") {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    name,
			ID:      decodeID(infos[i].ID.String()),
			Default: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// matchDevice picks the device index for a configured name: the default
// device for "", "default" or "sysdefault", else exact name, decoded ID and
// finally substring match. Returns -1 when nothing matches.
func matchDevice(devices []DeviceInfo, want string) int {
	switch want {
	case "", "default", "sysdefault":
		for _, d := range devices {
			if d.Default {
				return d.Index
			}
		}
		if len(devices) > 0 {
			return devices[0].Index
		}
		return -1
	}

	for _, d := range devices {
		if d.Name == want || d.ID == want {
			return d.Index
		}
	}
	for _, d := range devices {
		if strings.Contains(d.Name, want) {
			return d.Index
		}
	}
	return -1
}

// decodeID turns the hex-encoded ALSA ID back into text such as ":1,0".
// IDs that are not hex are returned unchanged.
func decodeID(id string) string {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return id
	}
	return strings.TrimRight(string(raw), "\x00")
}
