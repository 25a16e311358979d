// Command stegoscan runs the detectors offline: it analyzes single files,
// evaluates them against a labelled dataset and calibrates per-modality
// thresholds.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/stegoshield/stegoshield-api/detector"
	"github.com/stegoshield/stegoshield-api/utils"
)

var (
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
)

var out io.Writer = color.Output

func printInfo(format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", infoColor("[*]"), fmt.Sprintf(format, args...))
}

func printSuccess(format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", successColor("[+]"), fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", warningColor("[!]"), fmt.Sprintf(format, args...))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", errorColor("[-]"), fmt.Sprintf(format, args...))
}

func printAlert(format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", alertColor("[!!!]"), fmt.Sprintf(format, args...))
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  stegoscan analyze [-thresholds file] [-verbose] <file>...")
	fmt.Fprintln(os.Stderr, "  stegoscan evaluate -dataset <dir> [-thresholds file]")
	fmt.Fprintln(os.Stderr, "  stegoscan calibrate -dataset <dir> [-out thresholds.json]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(os.Args[2:])
	case "evaluate":
		err = runEvaluate(os.Args[2:])
	case "calibrate":
		err = runCalibrate(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// newRegistry builds a local-only registry, optionally with thresholds.
func newRegistry(thresholdsPath string, workers int) (*detector.Registry, error) {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	opts := []detector.Option{detector.WithLogger(log), detector.WithConcurrency(workers)}
	if thresholdsPath != "" {
		t, err := detector.LoadThresholds(thresholdsPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, detector.WithThresholds(t))
	}
	return detector.NewRegistry(opts...), nil
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	thresholds := fs.String("thresholds", "", "JSON file with per-modality thresholds")
	verbose := fs.Bool("verbose", false, "Print findings and detector details")
	fs.Parse(args)

	if fs.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	reg, err := newRegistry(*thresholds, 1)
	if err != nil {
		return err
	}

	flagged := 0
	for _, path := range fs.Args() {
		p, err := analyzeFile(context.Background(), reg, path)
		if err != nil {
			printError("%s: %v", path, err)
			continue
		}
		if p.Label == detector.LabelMalicious {
			flagged++
			printAlert("%s: %s (%s, confidence %.2f)", path, p.Label, p.Modality, p.Confidence)
		} else {
			printSuccess("%s: %s (%s, confidence %.2f)", path, p.Label, p.Modality, p.Confidence)
		}
		if *verbose {
			printFindings(p)
		}
	}

	printInfo("%d of %d files flagged", flagged, fs.NArg())
	return nil
}

func analyzeFile(ctx context.Context, reg *detector.Registry, path string) (*detector.Prediction, error) {
	m := detector.Modality(utils.ModalityFor(path, ""))
	if !m.Valid() {
		return nil, fmt.Errorf("unsupported file type %q", utils.Extension(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return reg.Analyze(ctx, m, filepath.Base(path), data)
}

func printFindings(p *detector.Prediction) {
	fmt.Fprintf(out, "    score: %.4f\n", p.Score)
	for _, f := range p.Findings {
		fmt.Fprintf(out, "    - %s (%.2f)", f.Description, f.Confidence)
		if f.Details != "" {
			fmt.Fprintf(out, ": %s", f.Details)
		}
		fmt.Fprintln(out)
	}
	keys := make([]string, 0, len(p.Details))
	for k := range p.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "    %s: %v\n", k, p.Details[k])
	}
}

func loadDataset(dir string, reg *detector.Registry, workers int) (map[detector.Modality][]scored, error) {
	if dir == "" {
		return nil, fmt.Errorf("-dataset is required")
	}
	samples, err := gatherSamples(dir)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no labelled samples under %s", dir)
	}
	printInfo("Scoring %d files from %s", len(samples), dir)

	results := scoreSamples(context.Background(), reg, samples, workers)
	for _, r := range results {
		if r.err != nil {
			printWarning("%s: %v", r.path, r.err)
		}
	}
	return byModality(results), nil
}

func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	dataset := fs.String("dataset", "", "Directory with images/, audio/ and video/ folders, each split into clean/ and stego/")
	thresholds := fs.String("thresholds", "", "JSON file with per-modality thresholds")
	workers := fs.Int("workers", 4, "Files analyzed in parallel")
	fs.Parse(args)

	reg, err := newRegistry(*thresholds, *workers)
	if err != nil {
		return err
	}
	groups, err := loadDataset(*dataset, reg, *workers)
	if err != nil {
		return err
	}

	for _, m := range detector.Modalities {
		results, ok := groups[m]
		if !ok {
			continue
		}
		t := reg.Threshold(m)
		printReport(m, t, evaluateAt(results, t))
	}
	return nil
}

func runCalibrate(args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	dataset := fs.String("dataset", "", "Directory with images/, audio/ and video/ folders, each split into clean/ and stego/")
	outPath := fs.String("out", "thresholds.json", "Where to write the calibrated thresholds")
	workers := fs.Int("workers", 4, "Files analyzed in parallel")
	fs.Parse(args)

	reg, err := newRegistry("", *workers)
	if err != nil {
		return err
	}
	groups, err := loadDataset(*dataset, reg, *workers)
	if err != nil {
		return err
	}

	calibrated := detector.Thresholds{}
	for _, m := range detector.Modalities {
		results, ok := groups[m]
		if !ok {
			continue
		}
		t, c := bestThreshold(results)
		calibrated[m] = t
		printReport(m, t, c)
	}

	if err := detector.SaveThresholds(*outPath, calibrated); err != nil {
		return err
	}
	printSuccess("Thresholds written to %s", *outPath)
	return nil
}

func printReport(m detector.Modality, threshold float64, c confusion) {
	printInfo("%s: %d files at threshold %.4f", strings.ToUpper(string(m)), c.total(), threshold)
	fmt.Fprintf(out, "    accuracy:  %.3f\n", c.accuracy())
	fmt.Fprintf(out, "    precision: %.3f\n", c.precision())
	fmt.Fprintf(out, "    recall:    %.3f\n", c.recall())
	fmt.Fprintf(out, "    tp=%d fp=%d tn=%d fn=%d\n", c.tp, c.fp, c.tn, c.fn)
}
