package analysis

import (
	"errors"
	"fmt"
	"io"
	"log"

	"mesoactivity/pkg/landmark"
	"mesoactivity/pkg/regionmap"
	"mesoactivity/pkg/report"
)

// Recording pairs the landmark file of one session with its region labeling
type Recording struct {
	LandmarkFile     string
	RegionPointsFile string
}

// Layout locates the bregma point inside a landmark CSV
type Layout struct {
	Row     int
	XColumn int
	YColumn int
}

// DefaultLayout matches the pose tracker's landmark CSV
func DefaultLayout() Layout {
	return Layout{Row: landmark.BregmaRow, XColumn: landmark.BregmaXColumn, YColumn: landmark.BregmaYColumn}
}

// Bregma measures every region's distance from bregma in each recording and
// summarizes those distances across recordings
func Bregma(recordings []Recording, layout Layout, sink report.Sink, logger *log.Logger) ([][]float64, []landmark.Summary, error) {
	if len(recordings) == 0 {
		return nil, nil, errors.New("at least one recording is required")
	}
	if sink == nil {
		sink = report.Discard
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	logger.Printf("Step 1: Measuring %d recordings...\n", len(recordings))
	sessions := make([][]float64, len(recordings))
	for i, rec := range recordings {
		bregma, err := landmark.LoadBregma(rec.LandmarkFile, layout.Row, layout.XColumn, layout.YColumn)
		if err != nil {
			return nil, nil, fmt.Errorf("recording %d: %w", i, err)
		}
		regions, err := regionmap.Load(rec.RegionPointsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("recording %d: failed to load region points: %w", i, err)
		}
		sessions[i] = landmark.Distances(bregma, landmark.CentersOfMass(regions))
		logger.Printf("Recording %d: bregma at (%.1f, %.1f), %d regions\n",
			i, bregma.X, bregma.Y, len(sessions[i]))
	}

	logger.Println("Step 2: Aggregating distances...")
	summaries, err := landmark.Aggregate(sessions)
	if err != nil {
		return nil, nil, err
	}

	if err := sink.WriteDistances(sessions, summaries); err != nil {
		return nil, nil, fmt.Errorf("failed to write distances: %w", err)
	}
	return sessions, summaries, nil
}
