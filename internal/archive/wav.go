package archive

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/tapcast/tapcast/internal/types"
)

// wavHeaderSize is the size of the canonical PCM WAV header.
const wavHeaderSize = 44

// wavWriter writes a PCM WAV file for the capture format. The header is
// patched with the final sizes on Close, so an unclosed file is truncated
// but still identifiable.
type wavWriter struct {
	f         *os.File
	dataBytes uint32
}

// newWAVWriter creates the file and writes a provisional header.
func newWAVWriter(path string) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create session file: %w", err)
	}

	w := &wavWriter{f: f}
	if err := w.writeHeader(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *wavWriter) writeHeader() error {
	var hdr [wavHeaderSize]byte

	byteRate := uint32(types.SampleRate * types.Channels * types.BytesPerSample)
	blockAlign := uint16(types.Channels * types.BytesPerSample)

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+w.dataBytes)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(hdr[22:24], types.Channels)
	binary.LittleEndian.PutUint32(hdr[24:28], types.SampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], types.BytesPerSample*8)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], w.dataBytes)

	if _, err := w.f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	return nil
}

// WriteFrame appends one encoded frame to the data chunk.
func (w *wavWriter) WriteFrame(frame []byte) error {
	n, err := w.f.WriteAt(frame, int64(wavHeaderSize+w.dataBytes))
	w.dataBytes += uint32(n)
	if err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// Close patches the header sizes and closes the file.
func (w *wavWriter) Close() error {
	if err := w.writeHeader(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}
