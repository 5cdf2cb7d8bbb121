package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/link"
	"github.com/itohio/isc0901/pkg/monitor"
	"github.com/itohio/isc0901/pkg/process"
	"github.com/itohio/isc0901/pkg/store"
	"github.com/itohio/isc0901/pkg/stream"
	"github.com/itohio/isc0901/pkg/view"
)

// updateInterval throttles widget updates to ~30 FPS.
const updateInterval = 33 * time.Millisecond

// captureChain tracks the components of the live chain for graceful shutdown.
type captureChain struct {
	device         link.Device
	frames         <-chan *stream.Frame
	monitorRoutine chan struct{} // Closed when the monitor goroutine exits
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	device      link.Device
	monitor     *monitor.Monitor
	frameWidget *view.FrameWidget
	window      fyne.Window
	connectBtn  *widget.Button
	resetBtn    *widget.Button
	saveBtn     *widget.Button
	useMock     bool
	chain       *captureChain // Current chain (nil if not connected)

	lastUpdateTime time.Time
	updateMu       sync.Mutex
	registerOnce   sync.Once
}

// createToolbar creates the toolbar with Connect, Reset, Save and Settings buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	state.connectBtn = widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})

	state.resetBtn = widget.NewButtonWithIcon("", theme.ViewRefreshIcon(), func() {
		handleReset(state)
	})
	state.resetBtn.Disable()

	state.saveBtn = widget.NewButtonWithIcon("", theme.DocumentSaveIcon(), func() {
		handleSave(state)
	})
	state.saveBtn.Disable()

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	return container.NewHBox(state.connectBtn, state.resetBtn, state.saveBtn, settingsBtn)
}

// closeCaptureChain closes the device and waits for the monitor goroutine,
// which exits once the converters drain.
func closeCaptureChain(chain *captureChain) {
	if chain == nil {
		return
	}
	if chain.device != nil {
		chain.device.Close()
	}
	if chain.monitorRoutine != nil {
		<-chain.monitorRoutine
	}
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.device != nil && state.device.IsConnected() {
		closeCaptureChain(state.chain)
		state.chain = nil
		state.device = nil
		state.resetBtn.Disable()
		state.saveBtn.Disable()
		log.Printf("Disconnected")
		return
	}

	var device link.Device
	if state.useMock {
		device = link.NewMock(state.cfg)
	} else {
		device = link.New(state.cfg.Serial.Port, state.cfg.Serial.BaudRate, link.DefaultBufferSize)
	}
	if err := device.Connect(); err != nil {
		dialog.ShowError(fmt.Errorf("failed to connect: %w", err), state.window)
		return
	}
	state.device = device
	state.resetBtn.Enable()
	state.saveBtn.Enable()

	state.monitor.ResetShutdown()
	state.registerOnce.Do(func() {
		state.monitor.OnUpdate(func(frame *stream.Frame, stats []monitor.Stats, drift []float64) {
			state.updateMu.Lock()
			now := time.Now()
			if now.Sub(state.lastUpdateTime) < updateInterval {
				state.updateMu.Unlock()
				return
			}
			state.lastUpdateTime = now
			state.updateMu.Unlock()

			fyne.Do(func() {
				state.frameWidget.UpdateData(frame, stats, drift)
			})
		})
	})

	frames := stream.NewConverter(state.cfg, 8)(device.Chunks())
	if state.cfg.Process.AverageFrames > 1 {
		frames = stream.NewAveragingConverter(state.cfg.Process.AverageFrames, 8)(frames)
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		state.monitor.ProcessFrames(frames)
	}()

	state.chain = &captureChain{
		device:         device,
		frames:         frames,
		monitorRoutine: monitorDone,
	}
}

// handleReset restarts the capture on the device.
func handleReset(state *appState) {
	if state.device == nil {
		return
	}
	if err := state.device.Reset(); err != nil {
		dialog.ShowError(fmt.Errorf("failed to reset device: %w", err), state.window)
	}
}

// handleSave writes the latest frame as PNG and archives it when a store is configured.
func handleSave(state *appState) {
	f := state.monitor.Latest()
	if f == nil {
		dialog.ShowInformation("Save", "No frame received yet", state.window)
		return
	}
	f, replaced := process.RemoveOutliers(f, state.cfg.Process.OutlierSigma)

	name := fmt.Sprintf("frame-%s.png", f.Timestamp.Format("20060102-150405.000"))
	img := process.Gray(f, state.cfg.Process.LowPercentile, state.cfg.Process.HighPercentile)
	if err := process.SavePNG(name, img); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	log.Printf("Saved %s (%d outliers replaced)", name, replaced)

	if state.cfg.Store.Path == "" {
		return
	}
	s, err := store.Open(state.cfg.Store.Path)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	defer s.Close()
	id, err := s.SaveCapture(context.Background(), state.cfg.Sensor.Variant, &stream.Result{Frames: []*stream.Frame{f}, Attempts: 1})
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	log.Printf("Archived frame %d as capture %s", f.Seq, id)
}
