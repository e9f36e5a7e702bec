// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// WAV16 builds a canonical 44-byte-header PCM16 RIFF/WAVE file.
func WAV16(sampleRate, channels int, samples []int16) []byte {
	buf := new(bytes.Buffer)

	blockAlign := uint16(channels * 2)
	dataSize := uint32(len(samples) * 2)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate)*uint32(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	_ = binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// ConstantWAV16 returns frames frames of value on every channel.
func ConstantWAV16(sampleRate, channels, frames int, value int16) []byte {
	samples := make([]int16, frames*channels)
	for i := range samples {
		samples[i] = value
	}
	return WAV16(sampleRate, channels, samples)
}

// FloatWAV builds an IEEE float WAV, a layout the native decoder rejects.
func FloatWAV(sampleRate, channels int, samples []float32) []byte {
	buf := new(bytes.Buffer)
	dataSize := uint32(len(samples) * 4)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(3))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*4))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*4))
	_ = binary.Write(buf, binary.LittleEndian, uint16(32))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	_ = binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// WriteFile stores data under t.TempDir and returns the path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}
