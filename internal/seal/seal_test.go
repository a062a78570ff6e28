package seal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/capture/internal/acquisition"
	"github.com/xtxerr/capture/internal/clock"
	"github.com/xtxerr/capture/internal/errors"
	"github.com/xtxerr/capture/internal/recorder"
	"github.com/xtxerr/capture/internal/signing"
	"github.com/xtxerr/capture/internal/storage/flash"
)

func record(t *testing.T, uploader recorder.Uploader, dev flash.Device) *recorder.Result {
	t.Helper()

	c := recorder.New(dev, recorder.Options{
		Clock:    clock.Fixed(time.Unix(0, 0)),
		Uploader: uploader,
	})

	info := acquisition.PayloadInfo{
		DeviceName: "bench",
		DeviceType: "CAPTURE_EMULATOR",
		IntervalMs: 100,
		LengthMs:   500,
		Label:      "wave.01",
		Algorithm:  signing.HS256,
		HMACKey:    "k",
		Sensors:    []acquisition.Sensor{{Name: "x", Units: "g"}},
	}
	driver := func(onSamples func([]byte) bool, _ float64) error {
		for i := 0; !onSamples(recorder.EncodeSamples(nil, []float32{float32(i)})); i++ {
		}
		return nil
	}

	res, err := c.StartSampling(context.Background(), info, 4, driver)
	if err != nil {
		t.Fatalf("StartSampling: %v", err)
	}
	return res
}

func newDevice(t *testing.T) *flash.Memory {
	t.Helper()

	mem, err := flash.NewMemory(flash.Geometry{Capacity: 8192, BlockSize: 1024, BlockEraseTimeMs: 1})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return mem
}

func TestFileSealer(t *testing.T) {
	dev := newDevice(t)
	dir := filepath.Join(t.TempDir(), "out")
	sealer := NewFileSealer(dev, dir)

	res := record(t, sealer, dev)

	data, err := os.ReadFile(sealer.Path("wave.01"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if uint32(len(data)) >= res.StoredLength {
		t.Errorf("sealed file has %d bytes, expected it trimmed below %d", len(data), res.StoredLength)
	}

	m, err := acquisition.Verify(data, "k")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !m.Sealed() || m.Signature != res.Signature.String() {
		t.Errorf("embedded signature %s, want %s", m.Signature, res.Signature)
	}
	if m.Samples() != 5 {
		t.Errorf("sealed %d samples, want 5", m.Samples())
	}

	if _, err := os.Stat(sealer.Path("wave.01") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestFileSealer_RejectsUnfinishedDevice(t *testing.T) {
	dev := newDevice(t)
	sealer := NewFileSealer(dev, t.TempDir())

	err := sealer.Upload(context.Background(), recorder.Recording{Label: "x", StoredLength: 64})
	if !errors.Is(err, errors.ErrMalformedRecording) {
		t.Errorf("expected ErrMalformedRecording, got %v", err)
	}
}

func TestLogUploader(t *testing.T) {
	dev := newDevice(t)
	res := record(t, NewLogUploader(), dev)
	if res.StoredLength == 0 {
		t.Error("expected a stored recording")
	}
}
