package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pcm16(values ...int16) []byte {
	out := make([]byte, 0, len(values)*2)
	for _, v := range values {
		out = append(out, byte(v), byte(uint16(v)>>8))
	}
	return out
}

func TestSampleWindow_PartialFill(t *testing.T) {
	w := NewSampleWindow(4)
	w.WritePCM(pcm16(16384, -16384))

	dst := make([]float64, 4)
	n := w.Snapshot(dst)

	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{0, 0, 0.5, -0.5}, dst)
}

func TestSampleWindow_OverwritesOldest(t *testing.T) {
	w := NewSampleWindow(3)
	w.WritePCM(pcm16(8192, 16384, 24576, -8192))

	dst := make([]float64, 3)
	n := w.Snapshot(dst)

	assert.Equal(t, 3, n)
	assert.Equal(t, []float64{0.5, 0.75, -0.25}, dst)
}

func TestSampleWindow_Reset(t *testing.T) {
	w := NewSampleWindow(2)
	w.WritePCM(pcm16(100, 200, 300))
	w.Reset()

	dst := make([]float64, 2)
	assert.Equal(t, 0, w.Snapshot(dst))
	assert.Equal(t, []float64{0, 0}, dst)
}

func TestVAD_SpeechStartAndEnd(t *testing.T) {
	v := NewVAD(VADConfig{EnergyThreshold: 0.01, SpeechFrames: 2, SilenceFrames: 2})
	loud := pcm16(16000, -16000, 16000, -16000)
	quiet := pcm16(0, 0, 0, 0)

	assert.Equal(t, VADSilence, v.Process(loud))
	assert.False(t, v.Speaking())

	assert.Equal(t, VADSpeechStart, v.Process(loud))
	assert.True(t, v.Speaking())
	assert.True(t, v.HeardSpeech())
	assert.Equal(t, VADSpeech, v.Process(loud))

	assert.Equal(t, VADSpeech, v.Process(quiet))
	assert.Equal(t, VADSpeechEnd, v.Process(quiet))
	assert.False(t, v.Speaking())
	assert.Equal(t, VADSilence, v.Process(quiet))

	v.Reset()
	assert.False(t, v.HeardSpeech())
}

func TestVAD_VoiceMustBeConsecutive(t *testing.T) {
	v := NewVAD(VADConfig{EnergyThreshold: 0.1, SpeechFrames: 3, SilenceFrames: 1})

	for _, level := range []float64{0.5, 0.5, 0.05, 0.5, 0.5} {
		assert.Equal(t, VADSilence, v.ProcessLevel(level))
	}
	assert.Equal(t, VADSpeechStart, v.ProcessLevel(0.5))
}

func TestRMSLevel(t *testing.T) {
	assert.Zero(t, RMSLevel(nil))
	assert.InDelta(t, 0.5, RMSLevel(pcm16(16384, -16384)), 1e-9)
}

func TestMatchDevice(t *testing.T) {
	names := []string{"Built-in Microphone", "USB Audio Headset", "Monitor of Speakers"}

	assert.Equal(t, 1, matchDevice("usb audio headset", names))
	assert.Equal(t, 1, matchDevice("headset", names))
	assert.Equal(t, 0, matchDevice("builtin", names))
	assert.Equal(t, -1, matchDevice("", names))
	assert.Equal(t, -1, matchDevice("zzz", names))
}

func TestFindDeviceByName(t *testing.T) {
	devices := []DeviceInfo{{Index: 0, Name: "Built-in Microphone", IsDefault: true}, {Index: 1, Name: "USB Headset"}}

	d, err := FindDeviceByName(devices, "usb")
	assert.NoError(t, err)
	assert.Equal(t, 1, d.Index)

	_, err = FindDeviceByName(devices, "bluetooth")
	assert.Error(t, err)

	def, err := DefaultDevice(devices)
	assert.NoError(t, err)
	assert.Equal(t, "Built-in Microphone", def.Name)

	_, err = DefaultDevice(nil)
	assert.ErrorIs(t, err, ErrAudioUnavailable)
}
