package vedbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPathAndGet(t *testing.T) {
	svc := NewService("com.victronenergy.grid.test")

	require.NoError(t, svc.AddPath("/Ac/Power", nil, WithText(Watts)))
	require.ErrorIs(t, svc.AddPath("/Ac/Power", nil), ErrPathExists)

	v, err := svc.Get("/Ac/Power")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = svc.Get("/Ac/Frequency")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Set("/Ac/Frequency", 50.0), ErrNotFound)
}

func TestSetOverwritesAndNotifies(t *testing.T) {
	var notified []string
	svc := NewService("test", OnValueChanged(func(path string, _ any) {
		notified = append(notified, path)
	}))

	require.NoError(t, svc.AddPath("/Ac/Power", nil, WithText(Watts)))

	require.NoError(t, svc.Set("/Ac/Power", 900.0))
	require.NoError(t, svc.Set("/Ac/Power", 900.0))

	v, err := svc.Get("/Ac/Power")
	require.NoError(t, err)
	assert.Equal(t, 900.0, v)
	assert.Equal(t, []string{"/Ac/Power", "/Ac/Power"}, notified)
}

func TestExternalWriteAcceptedThenOverwritten(t *testing.T) {
	svc := NewService("test")

	accepted := 0
	require.NoError(t, svc.AddPath("/Ac/Power", nil, Writable(func(string, any) bool {
		accepted++
		return true
	})))
	require.NoError(t, svc.AddPath("/DeviceInstance", 0))

	// external write is accepted but advisory
	require.NoError(t, svc.SetExternal("/Ac/Power", 123.0))
	assert.Equal(t, 1, accepted)
	v, _ := svc.Get("/Ac/Power")
	assert.Equal(t, 123.0, v)

	// the owner overwrites on its next pass
	require.NoError(t, svc.Set("/Ac/Power", 456.0))
	v, _ = svc.Get("/Ac/Power")
	assert.Equal(t, 456.0, v)

	// non-writable path rejects external writes
	assert.ErrorIs(t, svc.SetExternal("/DeviceInstance", 7), ErrNotWritable)
}

func TestExternalWriteRejectedByCallback(t *testing.T) {
	svc := NewService("test")
	require.NoError(t, svc.AddPath("/Position", 0, Writable(func(string, any) bool {
		return false
	})))

	require.NoError(t, svc.SetExternal("/Position", 2))
	v, _ := svc.Get("/Position")
	assert.Equal(t, 0, v)
}

func TestTextFormatting(t *testing.T) {
	svc := NewService("test")
	require.NoError(t, svc.AddPath("/Ac/Power", nil, WithText(Watts)))
	require.NoError(t, svc.AddPath("/Ac/L1/Voltage", nil, WithText(Volts)))
	require.NoError(t, svc.AddPath("/Ac/L1/Current", nil, WithText(Amps)))
	require.NoError(t, svc.AddPath("/Ac/Energy/Forward", nil, WithText(KWh)))
	require.NoError(t, svc.AddPath("/Ac/L1/Frequency", nil, WithText(Hertz)))
	require.NoError(t, svc.AddPath("/UpdateIndex", 0, WithText(Integer)))
	require.NoError(t, svc.AddPath("/Role", "grid"))

	// invalid values render empty
	text, err := svc.Text("/Ac/Power")
	require.NoError(t, err)
	assert.Equal(t, "", text)

	_ = svc.Set("/Ac/Power", 899.6)
	_ = svc.Set("/Ac/L1/Voltage", 230.0)
	_ = svc.Set("/Ac/L1/Current", 1.3043)
	_ = svc.Set("/Ac/Energy/Forward", 12.3456)
	_ = svc.Set("/Ac/L1/Frequency", 49.987)

	for path, want := range map[string]string{
		"/Ac/Power":          "900W",
		"/Ac/L1/Voltage":     "230.0V",
		"/Ac/L1/Current":     "1.30A",
		"/Ac/Energy/Forward": "12.35kWh",
		"/Ac/L1/Frequency":   "49.99Hz",
		"/UpdateIndex":       "0",
		"/Role":              "grid",
	} {
		text, err := svc.Text(path)
		require.NoError(t, err)
		assert.Equal(t, want, text, path)
	}
}

func TestSnapshotAndPaths(t *testing.T) {
	svc := NewService("test")
	require.NoError(t, svc.AddPath("/B", 2))
	require.NoError(t, svc.AddPath("/A", 1))

	assert.Equal(t, []string{"/A", "/B"}, svc.Paths())
	assert.Equal(t, map[string]any{"/A": 1, "/B": 2}, svc.Snapshot())
}

func TestGetInt(t *testing.T) {
	svc := NewService("test")
	require.NoError(t, svc.AddPath("/UpdateIndex", 0))
	require.NoError(t, svc.AddPath("/Ac/Power", nil))

	i, err := svc.GetInt("/UpdateIndex")
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_ = svc.Set("/UpdateIndex", 42)
	i, _ = svc.GetInt("/UpdateIndex")
	assert.Equal(t, 42, i)

	// invalid value reads as zero
	i, err = svc.GetInt("/Ac/Power")
	require.NoError(t, err)
	assert.Equal(t, 0, i)
}
