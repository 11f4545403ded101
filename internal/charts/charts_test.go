package charts

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/glucolink/glucolink/internal/models"
	"github.com/glucolink/glucolink/internal/shared"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47}

func sampleReadings(n int) []models.Reading {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	readings := make([]models.Reading, n)
	for i := range readings {
		readings[i] = models.Reading{
			DisplayTime: base.Add(time.Duration(i) * 5 * time.Minute),
			Value:       100 + float64(i*10),
		}
	}
	return readings
}

func TestLineRenderer(t *testing.T) {
	t.Run("Renders PNG", func(t *testing.T) {
		renderer := NewLineRenderer()

		image, err := renderer.Render(sampleReadings(12))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(image) == 0 {
			t.Fatal("expected non-empty image bytes")
		}
		if !bytes.HasPrefix(image, pngMagic) {
			t.Error("expected PNG magic bytes")
		}
	})

	t.Run("Too Few Readings", func(t *testing.T) {
		renderer := NewLineRenderer()

		for _, n := range []int{0, 1} {
			if _, err := renderer.Render(sampleReadings(n)); !errors.Is(err, shared.ErrNoReadings) {
				t.Errorf("readings=%d: expected ErrNoReadings, got %v", n, err)
			}
		}
	})
}
