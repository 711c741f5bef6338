// Package report emits the data products of an activity analysis: traces,
// spectra, correlation matrices and region tables.
package report

import (
	"errors"

	"mesoactivity/pkg/correlation"
	"mesoactivity/pkg/landmark"
	"mesoactivity/pkg/masks"
	"mesoactivity/pkg/reduce"
)

// Sink receives the pure data products of a run. Implementations decide how
// to render them.
type Sink interface {
	// WriteMasks receives the mask set the traces were reduced with
	WriteMasks(set *masks.Set) error

	// WriteTimeSeries receives a regions x frames trace matrix under a name
	// such as "activity"
	WriteTimeSeries(name string, ts *reduce.TimeSeries) error

	// WriteSpectra receives one power spectrum per region and the frequency
	// of each bin
	WriteSpectra(spectra [][]float64, freqs []float64) error

	// WriteCorrelation receives the correlation products and the traces they
	// were computed from
	WriteCorrelation(ts *reduce.TimeSeries, res *correlation.Result) error

	// WriteDistances receives per-session bregma distances and their summary
	WriteDistances(sessions [][]float64, summaries []landmark.Summary) error

	// Close flushes the sink
	Close() error
}

// Multi fans every product out to several sinks. All sinks receive every
// call; errors are joined.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) WriteMasks(set *masks.Set) error {
	return m.each(func(s Sink) error { return s.WriteMasks(set) })
}

func (m multi) WriteTimeSeries(name string, ts *reduce.TimeSeries) error {
	return m.each(func(s Sink) error { return s.WriteTimeSeries(name, ts) })
}

func (m multi) WriteSpectra(spectra [][]float64, freqs []float64) error {
	return m.each(func(s Sink) error { return s.WriteSpectra(spectra, freqs) })
}

func (m multi) WriteCorrelation(ts *reduce.TimeSeries, res *correlation.Result) error {
	return m.each(func(s Sink) error { return s.WriteCorrelation(ts, res) })
}

func (m multi) WriteDistances(sessions [][]float64, summaries []landmark.Summary) error {
	return m.each(func(s Sink) error { return s.WriteDistances(sessions, summaries) })
}

func (m multi) Close() error {
	return m.each(func(s Sink) error { return s.Close() })
}

// Discard is a Sink that drops everything
var Discard Sink = discard{}

type discard struct{}

func (discard) WriteMasks(*masks.Set) error { return nil }
func (discard) WriteTimeSeries(string, *reduce.TimeSeries) error { return nil }
func (discard) WriteSpectra([][]float64, []float64) error { return nil }
func (discard) WriteCorrelation(*reduce.TimeSeries, *correlation.Result) error { return nil }
func (discard) WriteDistances([][]float64, []landmark.Summary) error { return nil }
func (discard) Close() error { return nil }
