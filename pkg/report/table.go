package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"

	"mesoactivity/internal/models"
	"mesoactivity/pkg/correlation"
	"mesoactivity/pkg/landmark"
	"mesoactivity/pkg/masks"
	"mesoactivity/pkg/reduce"
	"mesoactivity/pkg/spectral"
)

// TableSink prints summaries of every product as aligned text tables
type TableSink struct {
	w io.Writer

	// PrintMatrix also prints the full correlation matrix
	PrintMatrix bool
}

// NewTableSink returns a sink printing to w
func NewTableSink(w io.Writer) *TableSink {
	return &TableSink{w: w}
}

func (s *TableSink) table(header string, rows func(tw *tabwriter.Writer)) error {
	tw := tabwriter.NewWriter(s.w, 0, 4, 2, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(tw, header)
	rows(tw)
	return tw.Flush()
}

// WriteMasks prints the pixel area of every region
func (s *TableSink) WriteMasks(set *masks.Set) error {
	return s.table("region\tarea\t", func(tw *tabwriter.Writer) {
		for r, m := range set.All() {
			fmt.Fprintf(tw, "%d\t%d\t\n", r, m.Area())
		}
	})
}

// WriteTimeSeries prints the trace dimensions
func (s *TableSink) WriteTimeSeries(name string, ts *reduce.TimeSeries) error {
	_, err := fmt.Fprintf(s.w, "%s: %d regions x %d frames\n", name, ts.Regions(), ts.Frames())
	return err
}

// WriteSpectra prints the dominant non-DC bin of every region
func (s *TableSink) WriteSpectra(spectra [][]float64, freqs []float64) error {
	return s.table("region\tpeak bin\tfrequency\tpower\t", func(tw *tabwriter.Writer) {
		for r, power := range spectra {
			bin, peak := spectral.Peak(power)
			freq := "-"
			if bin >= 0 && bin < len(freqs) {
				freq = fmt.Sprintf("%.3f", freqs[bin])
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%.4g\t\n", r, bin, freq, peak)
		}
	})
}

// WriteCorrelation prints the complement and significant pairs
func (s *TableSink) WriteCorrelation(_ *reduce.TimeSeries, res *correlation.Result) error {
	if s.PrintMatrix {
		fmt.Fprintf(s.w, "%.3f\n\n", mat.Formatted(res.Matrix, mat.Squeeze()))
	}

	for _, section := range []struct {
		title string
		pairs []models.Pair
	}{
		{"complement pairs", res.Complements},
		{"significant pairs", res.Significant},
	} {
		fmt.Fprintf(s.w, "%s (%d)\n", section.title, len(section.pairs))
		err := s.table("region a\tregion b\tr\t", func(tw *tabwriter.Writer) {
			for _, p := range section.pairs {
				fmt.Fprintf(tw, "%d\t%d\t%.3f\t\n", p.A, p.B, p.R)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteDistances prints per-session distances and the cross-session summary
func (s *TableSink) WriteDistances(sessions [][]float64, summaries []landmark.Summary) error {
	for i, d := range sessions {
		fmt.Fprintf(s.w, "session %d\n", i)
		err := s.table("region\tdistance from bregma\t", func(tw *tabwriter.Writer) {
			for r, v := range d {
				fmt.Fprintf(tw, "%d\t%.3f\t\n", r, v)
			}
		})
		if err != nil {
			return err
		}
	}

	return s.table("region\tabsolute difference\taverage distance from bregma\tstd\t", func(tw *tabwriter.Writer) {
		for _, sm := range summaries {
			fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%.3f\t\n", sm.Region, sm.AbsDifference, sm.Mean, sm.Std)
		}
	})
}

// Close is a no-op
func (s *TableSink) Close() error {
	return nil
}
