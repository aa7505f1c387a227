package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"

	"rockct3d/pkg/config"
	"rockct3d/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	input := flag.String("input", "", "Local stack file or slice directory (overrides input.path)")
	url := flag.String("url", "", "Remote http(s) or gs:// stack (overrides input.url)")
	outputDir := flag.String("output", "", "Output directory (overrides output.dir)")
	method := flag.String("method", "", "Threshold method: otsu, yen or local (overrides threshold.method)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (overrides processing.numCores)")
	extractSlices := flag.Bool("extract-slices", false, "Save x, y and z slice sequences of the cleaned mask and the threshold source")
	slicesDir := flag.String("slices-dir", "", "Directory for extracted slices, relative to the output directory (overrides output.slicesDir)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	writeConfig := flag.String("write-config", "", "Write a default configuration file to this path and exit")
	flag.Parse()

	logger := initLogger(*debug)

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			logger.WithError(err).Fatal("Failed to write configuration")
		}
		logger.WithField("path", *writeConfig).Info("Default configuration written")
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if cfg.Output.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if cfg.Output.LogFile != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename: cfg.Output.LogFile,
			MaxSize:  cfg.Output.LogMaxSize, // megabytes
			MaxAge:   cfg.Output.LogMaxAge,  // days
		}))
	}

	// Command line flags take precedence over the file
	if *input != "" {
		cfg.Input.Path = *input
	}
	if *url != "" {
		cfg.Input.URL = *url
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *method != "" {
		cfg.Threshold.Method = *method
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *extractSlices {
		cfg.Output.ExtractSlices = true
	}
	if *slicesDir != "" {
		cfg.Output.SlicesDir = *slicesDir
	}

	params, err := pipeline.ParamsFromConfig(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.WithFields(logrus.Fields{
		"input":  cfg.Input.Path,
		"url":    cfg.Input.URL,
		"output": cfg.Output.Dir,
		"method": cfg.Threshold.Method,
		"cores":  cfg.Processing.NumCores,
	}).Info("Starting rock segmentation")

	runner := pipeline.NewRunner(params, logger)
	startTime := time.Now()
	if err := runner.Process(ctx); err != nil {
		logger.WithError(err).Fatal("Pipeline failed")
	}

	for _, rec := range runner.Metrics() {
		snr := fmt.Sprintf("%.2f dB", rec.SNR)
		if math.IsInf(rec.SNR, 1) {
			snr = "inf"
		}
		fmt.Printf("%-12s MSE %-12.4f SNR %s\n", rec.Filter, rec.MSE, snr)
	}

	mask := runner.Mask()
	logger.WithFields(logrus.Fields{
		"elapsed":    time.Since(startTime).Round(time.Millisecond).String(),
		"output":     filepath.Join(cfg.Output.Dir, cfg.Output.BinaryFile),
		"foreground": fmt.Sprintf("%.2f%%", 100*float64(mask.Count())/float64(mask.Len())),
	}).Info("Segmentation completed")
}

// initLogger sets up text logs in debug mode and JSON logs otherwise
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
