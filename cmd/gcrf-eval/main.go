package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/gatedcrf/datasets"
	"github.com/Noofbiz/gatedcrf/gcrf"
	"github.com/Noofbiz/gatedcrf/report"
)

// defaultConfigJSON is used when no -config file is given. Explicit CLI
// flags override both.
const defaultConfigJSON = `{
  "num_classes": 0,
  "span": 11,
  "device": "cpu",
  "kernel": {
    "appearance": 0.1,
    "position": 6,
    "depth": 0.2
  },
  "workers": 0
}
`

func main() {
	manifestFlag := flag.String("manifest", "", "CSV manifest (image,depth,label[,prediction]) or a directory holding one; auto-discovered under assets/ when empty")
	configFlag := flag.String("config", "", "path to a JSON loss configuration (optional)")
	numClasses := flag.Int("num-classes", 0, "number of segmentation classes (overrides JSON if provided)")
	span := flag.Int("span", gcrf.DefaultSpan, "neighbourhood radius (overrides JSON if provided)")
	device := flag.String("device", "cpu", "execution device: cpu or accelerator (overrides JSON if provided)")
	workers := flag.Int("workers", 0, "goroutines evaluating offsets (0 = NumCPU, overrides JSON if provided)")
	batchSize := flag.Int("batch-size", 4, "samples per batch; all samples of a batch must share one size")
	confidence := flag.Float64("confidence", 4, "logit given to the predicted class when the manifest has predictions")
	smoothWeight := flag.Float64("smooth-weight", 1, "weight of the smoothness term in the combined loss")
	balanced := flag.Bool("balanced-weights", false, "weight the classification loss by per-batch inverse log class frequency")
	colorSpace := flag.String("color-space", "rgb", "appearance colour space: rgb or lab")
	limit := flag.Int("limit", 0, "maximum number of batches to evaluate (0 = all)")
	seed := flag.Int64("seed", 0, "shuffle the manifest with this seed (0 = manifest order)")
	outCSV := flag.String("out-csv", "output/losses.csv", "if set, write per-batch losses to this CSV")
	plotsDir := flag.String("plots", "", "if set, write the energy heatmap and loss curve to this directory")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")

	flag.Parse()

	var cfg gcrf.Config
	if strings.TrimSpace(*configFlag) != "" {
		loaded, err := gcrf.LoadConfig(*configFlag)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configFlag, err)
		}
		cfg = loaded
		log.Printf("Loaded loss config from %s", *configFlag)
	} else if err := json.Unmarshal([]byte(defaultConfigJSON), &cfg); err != nil {
		log.Fatalf("failed to parse embedded default config: %v", err)
	}

	// explicit CLI flags always win over JSON values
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "num-classes":
			cfg.NumClasses = *numClasses
		case "span":
			cfg.Span = *span
		case "device":
			cfg.Device = gcrf.Device(*device)
		case "workers":
			cfg.Workers = *workers
		}
	})
	cfg = cfg.WithDefaults()

	if *printEffectiveConfig {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.Fatalf("failed to marshal effective config: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	loss, err := gcrf.New(cfg)
	if err != nil {
		log.Fatalf("failed to build loss: %v", err)
	}

	manifest, err := datasets.ResolveManifest(*manifestFlag)
	if err != nil {
		log.Fatalf("failed to resolve manifest: %v", err)
	}
	ds, err := datasets.NewSegmentationDataset(manifest)
	if err != nil {
		log.Fatalf("failed to open segmentation dataset: %v", err)
	}
	if ds.ColorSpace, err = datasets.ParseColorSpace(*colorSpace); err != nil {
		log.Fatalf("invalid -color-space: %v", err)
	}
	log.Printf("Segmentation dataset loaded from %s: total samples=%d", manifest, ds.Len())
	if !ds.HasPredictions() {
		log.Printf("warning: manifest has no prediction column; evaluating uniform logits")
	}
	if *seed != 0 {
		ds.Shuffle(*seed)
	}
	if *batchSize < 1 {
		log.Fatalf("-batch-size must be >= 1, got %d", *batchSize)
	}

	var (
		records   []report.Record
		firstGrid *gcrf.EnergyGrid
	)
	for start, b := 0, 0; start < ds.Len(); start, b = start+*batchSize, b+1 {
		if *limit > 0 && b >= *limit {
			break
		}
		end := min(start+*batchSize, ds.Len())
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}

		bt, err := ds.Batch(indices)
		if err != nil {
			log.Fatalf("batch %d: %v", b, err)
		}
		logits, err := bt.Logits(cfg.NumClasses, float32(*confidence))
		if err != nil {
			log.Fatalf("batch %d: %v", b, err)
		}
		var weights []float64
		if *balanced {
			weights = bt.ClassWeights(cfg.NumClasses)
		}

		res, err := loss.ComputeLossesTensors(bt.TensorInputs(logits, weights))
		if errors.Is(err, gcrf.ErrUndefinedReduction) {
			log.Printf("batch %d: %v", b, err)
		} else if err != nil {
			log.Fatalf("batch %d: %v", b, err)
		}
		log.Printf("batch %d: classification=%.6f smoothness=%.6f combined=%.6f annotated_fraction=%.3f",
			b, res.Classification, res.Smoothness, res.Combined(*smoothWeight), res.AnnotatedFraction)

		if firstGrid == nil && res.Grid != nil {
			firstGrid = res.Grid
			log.Printf("batch %d: energy tensor %s", b, res.Energy.Shape())
		}
		records = append(records, report.Record{
			Batch:             b,
			Classification:    res.Classification,
			Smoothness:        res.Smoothness,
			AnnotatedFraction: res.AnnotatedFraction,
		})
	}
	log.Printf("Evaluated %d batches", len(records))

	if *outCSV != "" {
		if err := report.WriteCSV(*outCSV, records); err != nil {
			log.Fatalf("failed to write %s: %v", *outCSV, err)
		}
		log.Printf("Wrote per-batch losses to %s", *outCSV)
	}

	if *plotsDir != "" {
		heatmap := filepath.Join(*plotsDir, "energy_heatmap.png")
		if err := report.EnergyHeatmap(firstGrid, heatmap); err != nil {
			log.Printf("warning: energy heatmap: %v", err)
		} else {
			log.Printf("Wrote %s", heatmap)
		}
		curve := filepath.Join(*plotsDir, "loss_curve.png")
		if err := report.LossCurve(records, *smoothWeight, curve); err != nil {
			log.Printf("warning: loss curve: %v", err)
		} else {
			log.Printf("Wrote %s", curve)
		}
	}

	if len(records) == 0 {
		os.Exit(1)
	}
}
