package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"mesoactivity/internal/models"
	"mesoactivity/pkg/correlation"
	"mesoactivity/pkg/landmark"
	"mesoactivity/pkg/masks"
	"mesoactivity/pkg/reduce"
	"mesoactivity/pkg/spectral"
)

// Manifest describes one run. It is written to run.yaml when the sink closes.
type Manifest struct {
	RunID    string            `yaml:"runId"`
	Mode     string            `yaml:"mode"`
	Started  time.Time         `yaml:"started"`
	Finished time.Time         `yaml:"finished"`
	Params   map[string]string `yaml:"params,omitempty"`
	Files    []string          `yaml:"files"`
}

// PairReport is the content of pairs.yaml
type PairReport struct {
	Complements []models.Pair `yaml:"complements"`
	Significant []models.Pair `yaml:"significant"`
}

// DirSink writes every product as files into one directory
type DirSink struct {
	dir      string
	manifest Manifest
	now      func() time.Time
}

// NewDirSink creates dir if needed and returns a sink writing into it
func NewDirSink(dir, mode string, params map[string]string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create save directory: %w", err)
	}
	s := &DirSink{dir: dir, now: time.Now}
	s.manifest = Manifest{
		RunID:   uuid.NewString(),
		Mode:    mode,
		Started: s.now(),
		Params:  params,
	}
	return s, nil
}

// RunID returns the identifier recorded in the manifest
func (s *DirSink) RunID() string {
	return s.manifest.RunID
}

// Dir returns the output directory
func (s *DirSink) Dir() string {
	return s.dir
}

func (s *DirSink) path(name string) string {
	s.manifest.Files = append(s.manifest.Files, name)
	return filepath.Join(s.dir, name)
}

// WriteMasks saves the union of all masks as masks.png, the region layout as
// regions.png and one row per region with its pixel area in regions.csv
func (s *DirSink) WriteMasks(set *masks.Set) error {
	if err := SaveImage(MaskImage(set.Union()), s.path("masks.png")); err != nil {
		return fmt.Errorf("failed to save mask overlay: %w", err)
	}
	if err := SaveImage(LabelImage(set), s.path("regions.png")); err != nil {
		return fmt.Errorf("failed to save region layout: %w", err)
	}

	rows := [][]string{{"region", "area"}}
	for r, m := range set.All() {
		rows = append(rows, []string{strconv.Itoa(r), strconv.Itoa(m.Area())})
	}
	return writeCSV(s.path("regions.csv"), rows)
}

// WriteTimeSeries writes <name>.csv with one row per frame and one column per
// region
func (s *DirSink) WriteTimeSeries(name string, ts *reduce.TimeSeries) error {
	return writeCSV(s.path(name+".csv"), traceRows(ts, allRegions(ts.Regions())))
}

// WriteSpectra writes fft_<region>.csv for every region
func (s *DirSink) WriteSpectra(spectra [][]float64, freqs []float64) error {
	for r, power := range spectra {
		rows := [][]string{{"bin", "frequency", "power"}}
		for k, p := range power {
			freq := ""
			if k < len(freqs) {
				freq = formatFloat(freqs[k])
			}
			rows = append(rows, []string{strconv.Itoa(k), freq, formatFloat(p)})
		}
		if err := writeCSV(s.path(fmt.Sprintf("fft_%d.csv", r)), rows); err != nil {
			return err
		}
	}
	return nil
}

// WriteCorrelation writes the matrix as correlation.csv and correlation.png,
// the pair lists as pairs.yaml, and the two traces of every complement and
// significant pair as <label>.csv
func (s *DirSink) WriteCorrelation(ts *reduce.TimeSeries, res *correlation.Result) error {
	n := res.Matrix.SymmetricDim()
	rows := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		row := make([]string, n)
		for j := 0; j < n; j++ {
			row[j] = formatFloat(res.Matrix.At(i, j))
		}
		rows = append(rows, row)
	}
	if err := writeCSV(s.path("correlation.csv"), rows); err != nil {
		return err
	}
	if err := SaveImage(CorrelationImage(res.Matrix), s.path("correlation.png")); err != nil {
		return fmt.Errorf("failed to save correlation heatmap: %w", err)
	}

	for _, pairs := range [][]models.Pair{res.Complements, res.Significant} {
		for _, p := range pairs {
			if err := writeCSV(s.path(p.Label()+".csv"), traceRows(ts, []int{p.A, p.B})); err != nil {
				return err
			}
		}
	}

	return writeYAML(s.path("pairs.yaml"), PairReport{
		Complements: res.Complements,
		Significant: res.Significant,
	})
}

// WriteDistances writes distances.csv (one row per session) and
// distance_summary.csv
func (s *DirSink) WriteDistances(sessions [][]float64, summaries []landmark.Summary) error {
	var rows [][]string
	for i, d := range sessions {
		row := []string{strconv.Itoa(i)}
		for _, v := range d {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	if err := writeCSV(s.path("distances.csv"), rows); err != nil {
		return err
	}

	summary := [][]string{{"region", "absolute difference", "average distance from bregma", "std"}}
	for _, sm := range summaries {
		summary = append(summary, []string{
			strconv.Itoa(sm.Region),
			formatFloat(sm.AbsDifference),
			formatFloat(sm.Mean),
			formatFloat(sm.Std),
		})
	}
	return writeCSV(s.path("distance_summary.csv"), summary)
}

// Close writes run.yaml
func (s *DirSink) Close() error {
	s.manifest.Finished = s.now()
	manifest := s.manifest
	manifest.Files = append(append([]string{}, s.manifest.Files...), "run.yaml")
	return writeYAML(filepath.Join(s.dir, "run.yaml"), manifest)
}

// SpectrumFrequencies returns bin frequencies for n frames at fps, or nil
// when the frame rate is unknown
func SpectrumFrequencies(n int, fps float64) []float64 {
	if fps <= 0 {
		return nil
	}
	return spectral.Frequencies(n, fps)
}

func allRegions(n int) []int {
	regions := make([]int, n)
	for i := range regions {
		regions[i] = i
	}
	return regions
}

// traceRows lays the selected regions out as columns, one row per frame
func traceRows(ts *reduce.TimeSeries, regions []int) [][]string {
	header := []string{"frame"}
	for _, r := range regions {
		header = append(header, fmt.Sprintf("region_%d", r))
	}

	rows := [][]string{header}
	for f := 0; f < ts.Frames(); f++ {
		row := []string{strconv.Itoa(f)}
		for _, r := range regions {
			row = append(row, formatFloat(ts.At(r, f)))
		}
		rows = append(rows, row)
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}

	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
