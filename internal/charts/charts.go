// package charts renders glucose readings as PNG line charts
package charts

import (
	"bytes"
	"fmt"
	"time"

	"github.com/glucolink/glucolink/internal/models"
	"github.com/glucolink/glucolink/internal/shared"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Renderer converts a window of readings into image bytes.
type Renderer interface {
	Render(readings []models.Reading) ([]byte, error)
}

// LineRenderer renders a value-over-time line chart as PNG bytes.
type LineRenderer struct {
	Width  int
	Height int
	Title  string
}

// NewLineRenderer creates a [LineRenderer] with default dimensions.
func NewLineRenderer() *LineRenderer {
	return &LineRenderer{
		Width:  800,
		Height: 400,
		Title:  "Glucose (mg/dL)",
	}
}

// Render plots reading values against display time.
//
// At least two readings are required to draw a line; fewer is an error rather
// than an empty image.
func (r *LineRenderer) Render(readings []models.Reading) ([]byte, error) {
	if len(readings) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 readings to render a chart, got %d", shared.ErrNoReadings, len(readings))
	}

	xs := make([]time.Time, len(readings))
	ys := make([]float64, len(readings))
	for i, reading := range readings {
		xs[i] = reading.DisplayTime
		ys[i] = reading.Value
	}

	graph := chart.Chart{
		Title:  r.Title,
		Width:  r.Width,
		Height: r.Height,
		XAxis: chart.XAxis{
			Name:           "Time",
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
		},
		YAxis: chart.YAxis{
			Name: "mg/dL",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Glucose",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorBlue,
					StrokeWidth: 2.0,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	return buf.Bytes(), nil
}
