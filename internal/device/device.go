// Package device keeps a user's known playback devices and which one, if
// any, is active. All functions are pure: they take the registry snapshot
// and return a new one.
package device

import (
	"musicroom/internal/apperr"
)

const (
	MinVolume = 0
	MaxVolume = 100

	defaultVolume = 100
)

// Device is one playback endpoint owned by a user.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"` // "computer" | "smartphone" | "speaker" ...
	Volume   int    `json:"volumePercent"`
	IsActive bool   `json:"isActive"`
}

// Register adds d, or updates name, type and volume of the device with the
// same id. Activity is never changed here; use Transfer.
func Register(devices []Device, d Device) ([]Device, error) {
	if d.ID == "" {
		return devices, apperr.New(apperr.CodeInvalid, "device id is required")
	}
	if d.Volume < MinVolume || d.Volume > MaxVolume {
		return devices, apperr.New(apperr.CodeOutOfRange,
			"volume %d is outside [%d, %d]", d.Volume, MinVolume, MaxVolume)
	}

	out := clone(devices)
	for i := range out {
		if out[i].ID == d.ID {
			out[i].Name = d.Name
			out[i].Type = d.Type
			out[i].Volume = d.Volume
			return out, nil
		}
	}
	d.IsActive = false
	return append(out, d), nil
}

// NewDevice returns a device with the default volume.
func NewDevice(id, name, kind string) Device {
	return Device{ID: id, Name: name, Type: kind, Volume: defaultVolume}
}

// SetVolume changes the volume of one device.
func SetVolume(devices []Device, id string, volume int) ([]Device, error) {
	i := indexOf(devices, id)
	if i < 0 {
		return devices, apperr.New(apperr.CodeNotFound, "device %q not found", id)
	}
	if volume < MinVolume || volume > MaxVolume {
		return devices, apperr.New(apperr.CodeOutOfRange,
			"volume %d is outside [%d, %d]", volume, MinVolume, MaxVolume)
	}
	out := clone(devices)
	out[i].Volume = volume
	return out, nil
}

// Transfer makes id the only active device.
func Transfer(devices []Device, id string) ([]Device, error) {
	if indexOf(devices, id) < 0 {
		return devices, apperr.New(apperr.CodeNotFound, "device %q not found", id)
	}
	out := clone(devices)
	for i := range out {
		out[i].IsActive = out[i].ID == id
	}
	return out, nil
}

// Active returns the active device, if any.
func Active(devices []Device) (Device, bool) {
	for _, d := range devices {
		if d.IsActive {
			return d, true
		}
	}
	return Device{}, false
}

// Find returns the device with the given id.
func Find(devices []Device, id string) (Device, bool) {
	i := indexOf(devices, id)
	if i < 0 {
		return Device{}, false
	}
	return devices[i], true
}

func indexOf(devices []Device, id string) int {
	for i, d := range devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func clone(devices []Device) []Device {
	out := make([]Device, len(devices))
	copy(out, devices)
	return out
}
