package link

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the nominal rate; USB-CDC ports ignore it.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default number of chunks buffered for the reader.
	DefaultBufferSize = 256
	// ReadSize is the largest chunk read from the port at once.
	ReadSize = 4096

	readTimeout = 100 * time.Millisecond
	resetPulse  = 10 * time.Millisecond
)

// ErrNotConnected is returned by operations that need an open device.
var ErrNotConnected = errors.New("not connected")

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads the host byte stream from a serial port.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	open     func(name string, mode *serial.Mode) (serial.Port, error)

	conn      serial.Port
	chunks    chan []byte
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial instance with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:      port,
		baudRate:  baudRate,
		bufSize:   bufSize,
		open:      serial.Open,
		chunks:    make(chan []byte, bufSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and starts reading.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
	}

	port, err := d.open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		log.Printf("Failed to set read timeout on %s: %v", d.port, err)
	}

	d.conn = port
	d.connected = true
	log.Printf("Connected to %s", d.port)

	d.wg.Add(1)
	go d.readChunks(port)

	return nil
}

// Close closes the port, stops the reader and closes the chunk channel.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	// Cancel context to stop reading goroutine
	d.cancel()

	// Closing the port unblocks a pending Read
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
	}
	d.wg.Wait()
	d.conn = nil
	d.connected = false

	close(d.chunks)

	return nil
}

// Chunks returns the channel for reading the byte stream.
func (d *Serial) Chunks() <-chan []byte {
	return d.chunks
}

// Reset pulses DTR to restart the capture device, then discards buffered input.
func (d *Serial) Reset() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if err := d.conn.SetDTR(false); err != nil {
		return fmt.Errorf("failed to drop DTR: %w", err)
	}
	time.Sleep(resetPulse)
	if err := d.conn.SetDTR(true); err != nil {
		return fmt.Errorf("failed to raise DTR: %w", err)
	}
	if err := d.conn.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	drain(d.chunks)
	log.Printf("Reset %s", d.port)

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readChunks copies the port into the chunk channel until the port fails or
// the device is closed.
func (d *Serial) readChunks(port serial.Port) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readChunks: %v", r)
		}
	}()

	buf := make([]byte, ReadSize)
	for {
		n, err := port.Read(buf)
		if d.ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("Error reading from serial port: %v", err)
			return
		}
		if n == 0 {
			// read timeout
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		select {
		case d.chunks <- chunk:
		case <-d.ctx.Done():
			return
		}
	}
}

// drain discards everything queued on ch without blocking.
func drain(ch chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
