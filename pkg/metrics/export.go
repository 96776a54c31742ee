package metrics

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Exporter owns an in-process meter provider whose instruments can be read
// back on demand, for the dashboard's /api/metrics.
type Exporter struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewExporter creates a meter provider backed by a manual reader.
func NewExporter() *Exporter {
	reader := sdkmetric.NewManualReader()
	return &Exporter{
		reader:   reader,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

// Provider returns the meter provider to build a Recorder from.
func (e *Exporter) Provider() *sdkmetric.MeterProvider {
	return e.provider
}

// Point is one exported value. Histograms report their count and sum.
type Point struct {
	Name  string            `json:"name"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Value float64           `json:"value"`
	Count uint64            `json:"count,omitempty"`
}

// Collect reads every instrument and flattens the data points, sorted by
// name.
func (e *Exporter) Collect(ctx context.Context) ([]Point, error) {
	var rm metricdata.ResourceMetrics
	if err := e.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var points []Point
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{Name: m.Name, Attrs: attrs(dp.Attributes.ToSlice()), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{Name: m.Name, Attrs: attrs(dp.Attributes.ToSlice()), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{Name: m.Name, Attrs: attrs(dp.Attributes.ToSlice()), Value: dp.Sum, Count: dp.Count})
				}
			}
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Name < points[j].Name })
	return points, nil
}

func attrs(kvs []attribute.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

// Shutdown flushes and stops the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
