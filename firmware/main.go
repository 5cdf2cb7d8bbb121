//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/itohio/isc0901/pkg/power"
)

var (
	uart = machine.UART0

	seq   *power.Sequencer
	rails power.Rails
	last  power.State
)

func main() {
	PIN_EN_3V3.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_EN_2V5.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_EN_BOOST.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_READY.Configure(machine.PinConfig{Mode: machine.PinOutput})
	railsOff()

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	var err error
	seq, err = power.New(TICK_HZ, [3]float64{DELAY_3V3_US, DELAY_2V5_US, DELAY_BOOST_US})
	if err != nil {
		println("power sequencer:", err.Error())
		for {
			time.Sleep(time.Second)
		}
	}

	next := time.Now()
	for {
		processSerial()

		rails = seq.Step()
		applyRails(rails)
		if s := seq.State(); s != last {
			println("rail state", s.String())
			last = s
		}

		// Keep a fixed tick so delays match the sequencer thresholds
		next = next.Add(TICK_US * time.Microsecond)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		}
	}
}

func applyRails(r power.Rails) {
	PIN_EN_3V3.Set(r.En3V3)
	PIN_EN_2V5.Set(r.En2V5)
	PIN_EN_BOOST.Set(r.EnBoost)
	PIN_READY.Set(r.Ready)
}

func railsOff() {
	applyRails(power.Rails{})
}

// processSerial handles single-byte commands: 'r' restarts the rail sequence,
// 's' prints the current state.
func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		switch data {
		case 'r':
			railsOff()
			seq.Reset()
			last = seq.State()
			println("rails restarted")
		case 's':
			println("rail state", seq.State().String(), "ready", rails.Ready)
		}
	}
}
