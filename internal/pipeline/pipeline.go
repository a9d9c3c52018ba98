// Package pipeline turns an uploaded EDF recording into labelled output:
// labels from the file's markers or from the classifier, encoded markers
// and analytics, and the artifact files served to clients.
package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chrissnell/ecogmark/internal/annotation"
	"github.com/chrissnell/ecogmark/internal/edf"
	"github.com/chrissnell/ecogmark/internal/export"
	"github.com/chrissnell/ecogmark/internal/report"
	"github.com/chrissnell/ecogmark/internal/types"
	"go.uber.org/zap"
)

// Mode selects where labels come from
type Mode string

const (
	ModeMarkers Mode = "markers"
	ModeAI      Mode = "ai"
	// ModeCSV takes labels from a previously exported CSV. Uploads cannot
	// request it.
	ModeCSV Mode = "csv"
)

var (
	// ErrNoClassifier is returned for ModeAI when no classifier is configured
	ErrNoClassifier = errors.New("no classifier configured")
	// ErrUnknownMode is returned for any mode other than markers or ai
	ErrUnknownMode = errors.New("unknown analysis mode")
)

// Classifier assigns one class to every sample of a recording
type Classifier interface {
	Classify(ctx context.Context, rec *types.Recording) ([]types.Class, error)
}

// Pipeline holds what every analysis needs
type Pipeline struct {
	codec      *annotation.Codec
	channels   [types.ChannelCount]string
	classifier Classifier
	logger     *zap.SugaredLogger
}

// New creates a pipeline. classifier may be nil, which disables ModeAI.
func New(rate float64, channels [types.ChannelCount]string, classifier Classifier, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{
		codec:      annotation.NewCodec(rate, logger),
		channels:   channels,
		classifier: classifier,
		logger:     logger,
	}
}

// ParseMode maps a request value to a Mode; empty means markers
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeMarkers:
		return ModeMarkers, nil
	case ModeAI:
		return ModeAI, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// PlotFactor is the block size used to downsample the plot artifact
const PlotFactor = 100

// Outcome is everything produced by one analysis. Channels names the source
// signals the recording was built from.
type Outcome struct {
	Source    string
	Mode      Mode
	Hash      string
	Channels  [types.ChannelCount]string
	Recording *types.Recording
	Encoded   *annotation.Encoded
}

// Result converts the outcome into the record published to storage
func (o *Outcome) Result() types.AnalysisResult {
	return types.NewAnalysisResult(o.Source, o.Hash, string(o.Mode), o.Encoded.Analytics)
}

// Analyze reads an EDF stream, labels it and encodes the labels
func (p *Pipeline) Analyze(ctx context.Context, r io.Reader, source string, mode Mode) (*Outcome, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	f, err := edf.Read(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	rec, picked, err := p.recording(f)
	if err != nil {
		return nil, err
	}

	var labelled *types.Recording
	switch mode {
	case ModeMarkers:
		labelled, _, err = p.codec.Annotate(rec, f.Markers())
	case ModeAI:
		labelled, err = p.classify(ctx, rec)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err != nil {
		return nil, err
	}

	encoded, err := p.codec.Encode(labelled)
	if err != nil {
		return nil, err
	}

	p.logger.Infow("analysis complete",
		"source", source,
		"mode", mode,
		"samples", labelled.Len(),
		"anomalies", encoded.Analytics.AnomalyCount)

	return &Outcome{
		Source:    source,
		Mode:      mode,
		Hash:      ContentHash(data),
		Channels:  picked,
		Recording: labelled,
		Encoded:   encoded,
	}, nil
}

// AnalyzeCSV re-encodes a labelled CSV written by WriteArtifacts. The
// recording is taken to be sampled at the codec's rate.
func (p *Pipeline) AnalyzeCSV(r io.Reader, source string) (*Outcome, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}

	rec, names, err := export.ReadCSV(bytes.NewReader(data), p.codec.SamplingRate())
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}

	encoded, err := p.codec.Encode(rec)
	if err != nil {
		return nil, err
	}

	p.logger.Infow("csv re-encoded",
		"source", source,
		"samples", rec.Len(),
		"anomalies", encoded.Analytics.AnomalyCount)

	return &Outcome{
		Source:    source,
		Mode:      ModeCSV,
		Hash:      ContentHash(data),
		Channels:  names,
		Recording: rec,
		Encoded:   encoded,
	}, nil
}

// recording picks the configured channels by label, falling back to the
// first three data signals when the file uses other labels. It returns the
// labels of the signals actually used.
func (p *Pipeline) recording(f *edf.File) (*types.Recording, [types.ChannelCount]string, error) {
	rec, err := f.Recording(p.channels[:]...)
	if err == nil {
		return rec, p.channels, nil
	}
	p.logger.Debugf("channel lookup by label failed (%v), using first %d signals", err, types.ChannelCount)

	var picked [types.ChannelCount]string
	rec, err = f.Recording()
	if err != nil {
		return nil, picked, err
	}
	for c := range picked {
		picked[c] = f.Signals[c].Label
	}
	return rec, picked, nil
}

func (p *Pipeline) classify(ctx context.Context, rec *types.Recording) (*types.Recording, error) {
	if p.classifier == nil {
		return nil, ErrNoClassifier
	}
	if rec.SamplingRate() != p.codec.SamplingRate() {
		return nil, &annotation.RateMismatchError{Expected: p.codec.SamplingRate(), Actual: rec.SamplingRate()}
	}
	labels, err := p.classifier.Classify(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	return rec.WithLabels(labels)
}

// Artifacts names the files written for one analysis, relative to the
// output directory
type Artifacts struct {
	File   string `json:"file"`
	JSON   string `json:"json"`
	Plot   string `json:"plot"`
	CSV    string `json:"csv"`
	Report string `json:"report"`
}

// NewArtifacts names the artifacts for the file name stem base
func NewArtifacts(base string) Artifacts {
	return Artifacts{
		File:   base + "_marked.edf",
		JSON:   base + ".json",
		Plot:   base + "_plot.json",
		CSV:    base + ".csv",
		Report: base + "_report.txt",
	}
}

func (a Artifacts) names() []string {
	return []string{a.File, a.JSON, a.Plot, a.CSV, a.Report}
}

// Exist reports whether every artifact is present in dir
func (a Artifacts) Exist(dir string) bool {
	for _, name := range a.names() {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// WriteArtifacts writes the marked EDF, sample JSON, downsampled plot
// series, CSV and text report into dir using base as the file name stem
func (p *Pipeline) WriteArtifacts(dir, base string, o *Outcome) (Artifacts, error) {
	a := NewArtifacts(base)

	marked, err := edf.NewFile(o.Recording, o.Channels, o.Encoded.Markers)
	if err != nil {
		return a, err
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{a.File, func(w io.Writer) error { return edf.Write(w, marked) }},
		{a.JSON, func(w io.Writer) error { return json.NewEncoder(w).Encode(export.NewPlotData(o.Recording)) }},
		{a.Plot, func(w io.Writer) error { return json.NewEncoder(w).Encode(plotSeries(o)) }},
		{a.CSV, func(w io.Writer) error { return export.WriteCSV(w, o.Recording, o.Channels) }},
		{a.Report, func(w io.Writer) error { return report.Render(w, o.Encoded.Analytics) }},
	}

	for _, wr := range writers {
		if err := writeFile(filepath.Join(dir, wr.name), wr.write); err != nil {
			return a, fmt.Errorf("failed to write %s: %w", wr.name, err)
		}
	}
	return a, nil
}

func plotSeries(o *Outcome) []*export.Series {
	series := make([]*export.Series, 0, types.ChannelCount)
	for c, name := range o.Channels {
		series = append(series, export.Downsample(o.Recording, c, name, PlotFactor))
	}
	return series
}

// ContentHash is the hex MD5 of an upload's bytes
func ContentHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// NameHash is the file stem used for an upload: the hex MD5 of its name
func NameHash(filename string) string {
	sum := md5.Sum([]byte(filename))
	return hex.EncodeToString(sum[:])
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
