package main

import (
	"fmt"
	"strconv"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/link"
	"github.com/itohio/isc0901/pkg/monitor"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createSensorTab(state),
		createProcessTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func saveConfig(state *appState) {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := link.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name to port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentDisplay := state.cfg.Serial.Port
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == state.cfg.Serial.Port {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentDisplay != "" {
		portOptions = append(portOptions, currentDisplay)
		portMap[currentDisplay] = currentDisplay
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
		},
		OnSubmit: func() {
			if portSelect.Selected == "" {
				return
			}
			selected := portMap[portSelect.Selected]
			if selected == "" {
				selected = portSelect.Selected
			}
			changed := state.cfg.Serial.Port != selected
			state.cfg.Serial.Port = selected
			saveConfig(state)

			// Reconnect on the new port
			if changed && state.device != nil && state.device.IsConnected() && !state.useMock {
				handleConnect(state)
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createSensorTab selects the sensor variant. Changes apply on the next connect.
func createSensorTab(state *appState) *container.TabItem {
	variantSelect := widget.NewSelect(config.Variants(), nil)
	variantSelect.SetSelected(state.cfg.Sensor.Variant)

	geometry := widget.NewLabel(describe(state.cfg.Sensor))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Variant", Widget: variantSelect},
			{Text: "Geometry", Widget: geometry},
		},
		OnSubmit: func() {
			sensor, err := config.Variant(variantSelect.Selected)
			if err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			state.cfg.Sensor = sensor
			geometry.SetText(describe(sensor))
			saveConfig(state)
		},
	}

	return container.NewTabItem("Sensor", form)
}

func describe(s config.SensorConfig) string {
	return fmt.Sprintf("%dx%d pixels, %d bytes per frame, marker %v", s.Width(), s.Rows, s.FrameBytes(), s.Marker)
}

// createProcessTab creates the processing and display tab.
func createProcessTab(state *appState) *container.TabItem {
	sigmaEntry := widget.NewEntry()
	sigmaEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Process.OutlierSigma))

	averageEntry := widget.NewEntry()
	averageEntry.SetText(fmt.Sprintf("%d", state.cfg.Process.AverageFrames))

	lowEntry := widget.NewEntry()
	lowEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Process.LowPercentile))

	highEntry := widget.NewEntry()
	highEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Process.HighPercentile))

	windowEntry := widget.NewEntry()
	windowEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Monitor.WindowSeconds))

	paletteSelect := widget.NewSelect([]string{"iron", "gray"}, nil)
	paletteSelect.SetSelected(state.cfg.View.Palette)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Outlier sigma (0=disabled)", Widget: sigmaEntry},
			{Text: "Average frames (0=disabled)", Widget: averageEntry},
			{Text: "Low percentile", Widget: lowEntry},
			{Text: "High percentile", Widget: highEntry},
			{Text: "Statistics window (s)", Widget: windowEntry},
			{Text: "Palette (on restart)", Widget: paletteSelect},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(sigmaEntry.Text, 64); err == nil {
				state.cfg.Process.OutlierSigma = v
			}
			if v, err := strconv.Atoi(averageEntry.Text); err == nil {
				state.cfg.Process.AverageFrames = v
			}
			if v, err := strconv.ParseFloat(lowEntry.Text, 64); err == nil && v >= 0 && v <= 1 {
				state.cfg.Process.LowPercentile = v
			}
			if v, err := strconv.ParseFloat(highEntry.Text, 64); err == nil && v >= 0 && v <= 1 {
				state.cfg.Process.HighPercentile = v
			}
			if v, err := strconv.ParseFloat(windowEntry.Text, 64); err == nil && v > 0 {
				state.cfg.Monitor.WindowSeconds = v
			}
			if paletteSelect.Selected != "" {
				state.cfg.View.Palette = paletteSelect.Selected
			}
			saveConfig(state)

			// New window length applies to a fresh monitor once disconnected
			if state.chain == nil {
				state.monitor = monitor.New(state.cfg)
				state.registerOnce = sync.Once{}
			}
		},
	}

	return container.NewTabItem("Processing", form)
}

// createMockTab creates the simulated sensor tab.
func createMockTab(state *appState) *container.TabItem {
	patternSelect := widget.NewSelect([]string{"gradient", "constant", "checker", "shr"}, nil)
	patternSelect.SetSelected(state.cfg.Mock.Pattern)

	valueEntry := widget.NewEntry()
	valueEntry.SetText(fmt.Sprintf("0x%04x", state.cfg.Mock.Value))

	skipEntry := widget.NewEntry()
	skipEntry.SetText(fmt.Sprintf("%d", state.cfg.Mock.SkipBytes))

	concurrentCheck := widget.NewCheck("", nil)
	concurrentCheck.SetChecked(state.cfg.Mock.Concurrent)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Pattern", Widget: patternSelect},
			{Text: "Constant value", Widget: valueEntry},
			{Text: "Skip bytes until reset", Widget: skipEntry},
			{Text: "Concurrent clock domains", Widget: concurrentCheck},
		},
		OnSubmit: func() {
			if patternSelect.Selected != "" {
				state.cfg.Mock.Pattern = patternSelect.Selected
			}
			if v, err := strconv.ParseUint(valueEntry.Text, 0, 16); err == nil {
				state.cfg.Mock.Value = uint16(v) & 0x3fff
			}
			if v, err := strconv.Atoi(skipEntry.Text); err == nil && v >= 0 {
				state.cfg.Mock.SkipBytes = v
			}
			state.cfg.Mock.Concurrent = concurrentCheck.Checked
			saveConfig(state)
		},
	}

	return container.NewTabItem("Mock", form)
}
