package main

import (
	"flag"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/monitor"
	"github.com/itohio/isc0901/pkg/view"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag    = flag.Bool("mock", false, "Use the simulated sensor instead of a serial port")
		variantFlag = flag.String("variant", "", "Sensor variant override")
		averageFlag = flag.Int("average-frames", -1, "Number of frames to average (0 = disabled, overrides config)")
	)
	flag.Parse()

	// Load configuration
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
	if *averageFlag >= 0 {
		cfg.Process.AverageFrames = *averageFlag
	}

	application := app.NewWithID("com.itohio.isc0901")

	window := application.NewWindow("ISC0901 Thermal Viewer")
	window.Resize(fyne.NewSize(1000, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		monitor:    monitor.New(cfg),
		window:     window,
		useMock:    *mockFlag,
	}

	toolbar := createToolbar(state)

	state.frameWidget = view.New(cfg)

	content := container.NewBorder(
		toolbar,
		nil,
		nil,
		nil,
		state.frameWidget,
	)

	window.SetContent(content)
	window.SetOnClosed(func() {
		closeCaptureChain(state.chain)
	})
	window.ShowAndRun()
}
