package main

// Example command that loads a segmentation manifest with the
// auto-discovery helpers, stacks a small batch and prints the gated CRF
// losses for it.
//
// The dataset loads lazily: it stores the manifest rows and only decodes the
// images of the samples a batch asks for.
//
// Usage:
//   go run ./example
//
// Note: this example expects a manifest*.csv under an assets/ directory
// (AutoFindManifest tries several common locations). If none is found the
// example prints an error and exits.

import (
	"fmt"
	"log"

	"github.com/Noofbiz/gatedcrf/datasets"
	"github.com/Noofbiz/gatedcrf/gcrf"
)

func main() {
	manifest, err := datasets.AutoFindManifest()
	if err != nil {
		log.Fatalf("failed to auto-find manifest: %v", err)
	}
	ds, err := datasets.NewSegmentationDataset(manifest)
	if err != nil {
		log.Fatalf("failed to load segmentation dataset: %v", err)
	}
	fmt.Printf("Using manifest: %s\n", manifest)
	fmt.Printf("Total samples available: %d\n", ds.Len())

	n := min(4, ds.Len())
	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}

	fmt.Printf("Loading batch of %d samples...\n", n)
	bt, err := ds.Batch(indices)
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}

	app, depth, labels := bt.ToGomlxTensors()
	fmt.Printf("Created tensors: appearance=%s depth=%s labels=%s\n", app.Shape(), depth.Shape(), labels.Shape())

	numClasses := 1
	for _, id := range bt.Labels {
		numClasses = max(numClasses, int(id)+1)
	}
	for _, id := range bt.Predictions {
		numClasses = max(numClasses, int(id)+1)
	}

	loss, err := gcrf.New(gcrf.Config{NumClasses: numClasses, Span: gcrf.DefaultSpan})
	if err != nil {
		log.Fatalf("failed to build loss: %v", err)
	}
	logits, err := bt.Logits(numClasses, 4)
	if err != nil {
		log.Fatalf("failed to build logits: %v", err)
	}
	res, err := loss.ComputeLosses(bt.Inputs(logits, bt.ClassWeights(numClasses)))
	if err != nil {
		log.Printf("warning: %v", err)
	}
	fmt.Printf("classification=%.6f smoothness=%.6f annotated_fraction=%.3f\n",
		res.Classification, res.Smoothness, res.AnnotatedFraction)
}
