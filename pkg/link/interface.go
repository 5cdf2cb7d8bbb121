// Package link provides the host byte stream: from a serial port or from an
// in-process simulation of the sensor and its capture core.
package link

// Device defines the interface for host stream devices (real or simulated).
type Device interface {
	Connect() error
	Close() error
	// Chunks delivers the host byte stream in arrival order. The channel is
	// closed by Close.
	Chunks() <-chan []byte
	// Reset restarts the capture and discards everything not yet delivered.
	Reset() error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
