package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/itohio/isc0901/pkg/config"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag    = flag.Bool("mock", false, "Use the simulated sensor instead of a serial port")
		variantFlag = flag.String("variant", "", "Sensor variant override")
		framesFlag  = flag.Int("frames", 0, "Number of frames to capture (overrides config)")
		retriesFlag = flag.Int("retries", -1, "Reset-and-retry attempts on a missing marker (overrides config)")
		outputFlag  = flag.String("o", "", "Raw stream output file (overrides config)")
		averageFlag = flag.Int("average-frames", -1, "Frames averaged into the processed image (0 = all)")
		pngFlag     = flag.String("png", "", "Write the processed frame as PNG")
		histFlag    = flag.String("hist", "", "Write the processed frame histogram as PNG")
		archiveFlag = flag.String("archive", "", "SQLite capture archive (overrides config)")
		replayFlag  = flag.String("replay", "", "Process a raw stream dump instead of capturing")
		listFlag    = flag.Bool("list", false, "List archived captures and exit")
		quietFlag   = flag.Bool("q", false, "Do not print the per-frame preview")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *variantFlag != "" {
		sensor, err := config.Variant(*variantFlag)
		if err != nil {
			log.Fatalf("Failed to select variant: %v", err)
		}
		cfg.Sensor = sensor
	}
	if *framesFlag > 0 {
		cfg.Capture.Frames = *framesFlag
	}
	if *retriesFlag >= 0 {
		cfg.Capture.Retries = *retriesFlag
	}
	if *outputFlag != "" {
		cfg.Capture.Output = *outputFlag
	}
	if *averageFlag >= 0 {
		cfg.Process.AverageFrames = *averageFlag
	}
	if *archiveFlag != "" {
		cfg.Store.Path = *archiveFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := options{
		mock:    *mockFlag,
		png:     *pngFlag,
		hist:    *histFlag,
		replay:  *replayFlag,
		preview: !*quietFlag,
	}

	if *listFlag {
		err = listArchive(ctx, cfg, os.Stdout)
	} else {
		err = run(ctx, cfg, opts, os.Stdout)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
