package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicroom/internal/apperr"
)

func activeCount(devices []Device) int {
	n := 0
	for _, d := range devices {
		if d.IsActive {
			n++
		}
	}
	return n
}

func TestRegister(t *testing.T) {
	devices, err := Register(nil, NewDevice("phone", "Phone", "smartphone"))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, 100, devices[0].Volume)
	assert.False(t, devices[0].IsActive)

	devices, err = Transfer(devices, "phone")
	require.NoError(t, err)

	updated, err := Register(devices, Device{ID: "phone", Name: "My phone", Volume: 40})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "My phone", updated[0].Name)
	assert.Equal(t, 40, updated[0].Volume)
	assert.True(t, updated[0].IsActive, "register must not change activity")
	assert.Equal(t, "Phone", devices[0].Name, "input must not be modified")

	t.Run("new device arrives inactive", func(t *testing.T) {
		out, err := Register(updated, Device{ID: "tv", Name: "TV", IsActive: true, Volume: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, activeCount(out))
		tv, ok := Find(out, "tv")
		require.True(t, ok)
		assert.False(t, tv.IsActive)
	})

	t.Run("rejects missing id", func(t *testing.T) {
		_, err := Register(nil, Device{Name: "x"})
		assert.ErrorIs(t, err, apperr.Invalid)
	})

	t.Run("rejects bad volume", func(t *testing.T) {
		_, err := Register(nil, Device{ID: "x", Volume: 101})
		assert.ErrorIs(t, err, apperr.OutOfRange)
	})
}

func TestSetVolume(t *testing.T) {
	devices := []Device{{ID: "a", Volume: 50}, {ID: "b", Volume: 50}}

	out, err := SetVolume(devices, "b", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, out[1].Volume)
	assert.Equal(t, 50, devices[1].Volume)

	out, err = SetVolume(devices, "a", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, out[0].Volume)

	_, err = SetVolume(devices, "zzz", 10)
	assert.ErrorIs(t, err, apperr.NotFound)

	for _, v := range []int{-1, 101} {
		got, err := SetVolume(devices, "a", v)
		assert.ErrorIs(t, err, apperr.OutOfRange)
		assert.Equal(t, devices, got)
	}
}

func TestTransfer_ExactlyOneActive(t *testing.T) {
	registries := map[string][]Device{
		"none active": {{ID: "a"}, {ID: "b"}, {ID: "c"}},
		"other active": {{ID: "a", IsActive: true}, {ID: "b"}, {ID: "c"}},
		"target active": {{ID: "a"}, {ID: "b"}, {ID: "c", IsActive: true}},
		// a corrupted snapshot with two active devices is repaired too
		"several active": {{ID: "a", IsActive: true}, {ID: "b", IsActive: true}, {ID: "c"}},
	}

	for name, devices := range registries {
		t.Run(name, func(t *testing.T) {
			for _, target := range []string{"a", "b", "c"} {
				out, err := Transfer(devices, target)
				require.NoError(t, err)
				assert.Equal(t, 1, activeCount(out))
				active, ok := Active(out)
				require.True(t, ok)
				assert.Equal(t, target, active.ID)
			}
		})
	}
}

func TestTransfer_UnknownDevice(t *testing.T) {
	devices := []Device{{ID: "a", IsActive: true}}
	out, err := Transfer(devices, "ghost")
	assert.ErrorIs(t, err, apperr.NotFound)
	assert.Equal(t, devices, out)

	_, err = Transfer(nil, "ghost")
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestActive_None(t *testing.T) {
	_, ok := Active([]Device{{ID: "a"}})
	assert.False(t, ok)
}
