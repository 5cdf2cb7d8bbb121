//go:build tinygo

package main

import "machine"

const (
	// Sequencer tick
	TICK_US = 100 // sequencer step period in microseconds
	TICK_HZ = 1e6 / TICK_US

	// Rail delays in microseconds: 3V3, 2V5, boost
	DELAY_3V3_US   = 500
	DELAY_2V5_US   = 15000
	DELAY_BOOST_US = 4000

	// Rail enable pins
	PIN_EN_3V3   = machine.D1
	PIN_EN_2V5   = machine.D2
	PIN_EN_BOOST = machine.D3

	// Status LED, lit once all rails are up
	PIN_READY = machine.LED

	UART_BAUD_RATE = 115200
)
