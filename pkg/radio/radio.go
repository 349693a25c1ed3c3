// Package radio defines the contract between the core codec/scheduler
// logic and the physical BLE GAP advertising hardware, plus a software
// loopback implementation used by tests and by hosts with no real radio.
package radio

import (
	"context"
	"sync"
)

// Driver is the boundary the scheduler and listener drive: raw advertising
// start/stop/configure, and a channel of raw scan results. Real
// implementations wrap a platform BLE stack; this repository never
// reimplements vendor radio firmware, only this contract.
type Driver interface {
	// Configure loads raw as the next advertising payload. Must be called
	// while not advertising (stop -> configure -> start discipline).
	Configure(raw []byte) error

	// StartAdvertising begins broadcasting the configured payload.
	StartAdvertising() error

	// StopAdvertising halts broadcasting.
	StopAdvertising() error

	// StartScanning begins delivering raw scan results on the returned
	// channel until ctx is done or StopScanning is called. The channel is
	// closed when scanning stops.
	StartScanning(ctx context.Context) (<-chan []byte, error)

	// StopScanning halts scan result delivery.
	StopScanning() error
}

// Loopback is a software Driver double: StartAdvertising publishes the
// configured payload onto its own scan channel, so a single process can
// exercise the full encode -> schedule -> listen -> decode pipeline without
// a physical radio. Used by integration tests and by hosts configured with
// `radio.driver: loopback`.
type Loopback struct {
	mu          sync.Mutex
	configured  []byte
	advertising bool
	scanCh      chan []byte
	cancelScan  func()
}

// NewLoopback returns a ready-to-use loopback driver.
func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) Configure(raw []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := make([]byte, len(raw))
	copy(buf, raw)
	l.configured = buf
	return nil
}

func (l *Loopback) StartAdvertising() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advertising = true
	if l.scanCh != nil && l.configured != nil {
		payload := make([]byte, len(l.configured))
		copy(payload, l.configured)
		select {
		case l.scanCh <- payload:
		default:
		}
	}
	return nil
}

func (l *Loopback) StopAdvertising() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advertising = false
	return nil
}

func (l *Loopback) StartScanning(ctx context.Context) (<-chan []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan []byte, 64)
	l.scanCh = ch
	ctx, cancel := context.WithCancel(ctx)
	l.cancelScan = cancel
	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.scanCh == ch {
			close(ch)
			l.scanCh = nil
		}
	}()
	return ch, nil
}

func (l *Loopback) StopScanning() error {
	l.mu.Lock()
	cancel := l.cancelScan
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Inject manually feeds raw bytes onto the scan channel, for tests that
// want to simulate a device's own broadcast rather than this process's own
// advertising loopback.
func (l *Loopback) Inject(raw []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.scanCh == nil {
		return
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	select {
	case l.scanCh <- buf:
	default:
	}
}
