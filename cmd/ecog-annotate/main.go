// ecog-annotate runs the analysis pipeline on one EDF file without the
// server, writing the same artifacts the upload endpoint produces. A CSV
// exported by an earlier run is re-encoded from its class column instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrissnell/ecogmark/internal/app"
	"github.com/chrissnell/ecogmark/internal/log"
	"github.com/chrissnell/ecogmark/internal/pipeline"
	"github.com/chrissnell/ecogmark/internal/report"
	"github.com/chrissnell/ecogmark/pkg/config"
)

func main() {
	in := flag.String("in", "", "Path to the EDF recording or labelled CSV (required)")
	outDir := flag.String("out", ".", "Directory for the marked EDF, JSON, CSV and report")
	modeStr := flag.String("mode", "markers", "Label source: 'markers' (from the file) or 'ai' (classifier service)")
	cfgFile := flag.String("config", "", "Optional YAML configuration for the annotator and classifier")
	rate := flag.Float64("rate", 0, "Override the expected sampling rate in Hz")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if *in == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -in <recording.edf> [-out dir] [-mode markers|ai]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ann, err := annotatorConfig(*cfgFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *rate > 0 {
		ann.SamplingRate = *rate
	}

	mode, err := pipeline.ParseMode(*modeStr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	f, err := os.Open(*in)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *in, err)
	}
	defer f.Close()

	p := app.NewPipeline(ann, log.GetSugaredLogger())
	var out *pipeline.Outcome
	if strings.EqualFold(filepath.Ext(*in), ".csv") {
		out, err = p.AnalyzeCSV(f, filepath.Base(*in))
	} else {
		out, err = p.Analyze(context.Background(), f, filepath.Base(*in), mode)
	}
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	base := strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
	arts, err := p.WriteArtifacts(*outDir, base, out)
	if err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}

	if err := report.Render(os.Stdout, out.Encoded.Analytics); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	log.Infof("Wrote %s, %s, %s, %s and %s to %s", arts.File, arts.JSON, arts.Plot, arts.CSV, arts.Report, *outDir)
}

// annotatorConfig loads the annotator block from a YAML file, or returns
// the defaults when no file is given
func annotatorConfig(path string) (*config.AnnotatorData, error) {
	if path == "" {
		cfg := &config.ConfigData{}
		cfg.ApplyDefaults()
		return &cfg.Annotator, nil
	}
	return config.NewYAMLProvider(path).GetAnnotator()
}
