// Package metrics exposes per-run figures in the Prometheus text format, to
// be picked up by a node exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gauges of one run. A nil *Metrics ignores every call.
type Metrics struct {
	reg *prometheus.Registry

	// Records loaded from the source, duplicates included
	Records prometheus.Gauge

	// Distinct record ids
	UniqueRecords prometheus.Gauge

	// Entries per materialized view: "flat", "tree"
	ViewSize *prometheus.GaugeVec

	// Entries that received tax data, by view
	TaxMatches *prometheus.GaugeVec

	TaxCodes prometheus.Gauge

	// Distinct anomalies by kind
	Anomalies *prometheus.GaugeVec

	RunDuration *prometheus.GaugeVec
	LastSuccess *prometheus.GaugeVec
}

// New creates the run metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Records: f.NewGauge(prometheus.GaugeOpts{
			Name: "tarim_source_records",
			Help: "Records loaded from the nomenclature source, duplicates included",
		}),
		UniqueRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "tarim_unique_records",
			Help: "Distinct record ids after ingestion",
		}),
		ViewSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tarim_view_entries",
			Help: "Entries in each materialized view",
		}, []string{"view"}),
		TaxMatches: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tarim_tax_matches",
			Help: "View entries enriched with tax data",
		}, []string{"view"}),
		TaxCodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "tarim_tax_codes",
			Help: "Classification codes with tax data",
		}),
		Anomalies: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tarim_anomalies",
			Help: "Distinct data anomalies found during the run, by kind",
		}, []string{"kind"}),
		RunDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tarim_run_duration_seconds",
			Help: "Wall time of the last run by command",
		}, []string{"command"}),
		LastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tarim_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished, by command",
		}, []string{"command"}),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// SetRecords records source sizes.
func (m *Metrics) SetRecords(total, unique int) {
	if m != nil {
		m.Records.Set(float64(total))
		m.UniqueRecords.Set(float64(unique))
	}
}

// SetViewSize records the size of a view.
func (m *Metrics) SetViewSize(view string, n int) {
	if m != nil {
		m.ViewSize.WithLabelValues(view).Set(float64(n))
	}
}

// SetTaxMatches records how many entries of a view were enriched.
func (m *Metrics) SetTaxMatches(view string, n int) {
	if m != nil {
		m.TaxMatches.WithLabelValues(view).Set(float64(n))
	}
}

// SetTaxCodes records the size of the tax index.
func (m *Metrics) SetTaxCodes(n int) {
	if m != nil {
		m.TaxCodes.Set(float64(n))
	}
}

// SetAnomalies records the per-kind anomaly counts.
func (m *Metrics) SetAnomalies(byKind map[string]int) {
	if m != nil {
		for k, n := range byKind {
			m.Anomalies.WithLabelValues(k).Set(float64(n))
		}
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(command string, d time.Duration, finished time.Time) {
	if m != nil {
		m.RunDuration.WithLabelValues(command).Set(d.Seconds())
		m.LastSuccess.WithLabelValues(command).Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
