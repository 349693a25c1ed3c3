// Package listener implements the dispatch side of the bridge (C7): it
// drains raw advertisements from a radio.Driver's scan channel, probes each
// one against every registered codec, translates a successful decode back
// into a GenCmd, deduplicates repeats of the same physical broadcast, and
// publishes the result to every registered controller. No matching on the
// decoded controller id or index is done; each controller's own entity
// matching decides what it acts on.
//
// Adapted from the teacher's pkg/bridge: StreamTracker's id -> first-seen
// map becomes the dedupe window (keyed on data-structure bytes instead of a DMR
// stream id), and Router.RoutePacket's "try every candidate, dispatch to
// matches" shape becomes the per-frame probe loop.
package listener

import (
	"context"
	"crypto/sha1"
	"sync"
	"time"

	"github.com/kbable/ble-adv-bridge/pkg/codec"
	"github.com/kbable/ble-adv-bridge/pkg/events"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
	"github.com/kbable/ble-adv-bridge/pkg/logger"
	"github.com/kbable/ble-adv-bridge/pkg/metrics"
	"github.com/kbable/ble-adv-bridge/pkg/radio"
	"github.com/kbable/ble-adv-bridge/pkg/translate"
)

// DedupeWindow is how long a received broadcast's fingerprint is remembered:
// a device repeats every command several times during its own on-air
// window, and only the first repetition should reach a controller
// (spec.md section 5's duplicate-suppression note).
const DedupeWindow = 60 * time.Second

// Controller is the narrow slice of controller.Controller the listener
// needs to hand off a decoded command.
type Controller interface {
	Publish(gen gencmd.GenCmd, apply bool)
}

// seenEntry records when a fingerprint was first observed, mirroring the
// teacher's StreamInfo.
type seenEntry struct {
	firstSeen time.Time
}

// Listener is the process-wide C7 component: one per radio, dispatching to
// every registered controller.
type Listener struct {
	radio       radio.Driver
	codecs      *codec.Registry
	translators *translate.Registry
	hub         *events.Hub
	log         *logger.Logger
	metrics     *metrics.Collector

	mu           sync.Mutex
	controllers  []Controller
	seen         map[string]seenEntry
	selfTest     bool
}

// New returns a Listener driving radio, probing frames against codecs, and
// translating successful decodes through translators.
func New(driver radio.Driver, codecs *codec.Registry, translators *translate.Registry, hub *events.Hub, log *logger.Logger, collector *metrics.Collector) *Listener {
	return &Listener{
		radio:       driver,
		codecs:      codecs,
		translators: translators,
		hub:         hub,
		log:         log.WithComponent("listener"),
		metrics:     collector,
		seen:        make(map[string]seenEntry),
	}
}

// RegisterController adds a controller this listener dispatches decoded
// commands to.
func (l *Listener) RegisterController(c Controller) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.controllers = append(l.controllers, c)
}

// EnableSelfTest turns on re-encoding verification: every successful decode
// is re-encoded through its originating codec and compared byte-for-byte
// against the received frame, logging a mismatch instead of silently
// trusting the decode. Grounded on the teacher's TransmissionLogger's
// persist-on-terminator pattern, repurposed here as a correctness check
// rather than a storage write.
func (l *Listener) EnableSelfTest() {
	l.selfTest = true
}

// Run drains raw scan results from radio until ctx is done, probing,
// deduping and dispatching each one.
func (l *Listener) Run(ctx context.Context) error {
	ch, err := l.radio.StartScanning(ctx)
	if err != nil {
		return err
	}
	defer l.radio.StopScanning()

	cleanup := time.NewTicker(DedupeWindow)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-cleanup.C:
			l.cleanupOldEntries(time.Now())
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(raw)
		}
	}
}

func (l *Listener) handle(raw []byte) {
	l.metrics.FrameReceived(len(raw))
	f := frame.FromRaw(raw)

	fingerprint := fingerprintOf(f.DataBytes())
	now := time.Now()
	if l.isDuplicate(fingerprint, now) {
		l.metrics.DedupeHit()
		return
	}

	matched := false
	for _, cd := range l.codecs.All() {
		enc, params, ok := cd.Decode(f)
		if !ok {
			continue
		}
		matched = true
		l.metrics.DecodeSucceeded(cd.ID())

		if l.selfTest {
			l.verifyRoundTrip(cd, enc, params, f)
		}

		tr, err := l.translators.Get(cd.Encoding())
		if err != nil {
			l.log.Error("no translator for decoded encoding",
				logger.String("encoding", cd.Encoding()),
				logger.Uint8("cmd", enc.Cmd),
				logger.Uint8("index", params.Index),
				logger.Error(err))
			continue
		}
		gen, ok := tr.E2G(enc)
		if !ok {
			continue
		}

		l.hub.Broadcast(events.FrameDecoded(cd.ID(), gen.Cmd.String(), gen.EntityType.String(), gen.EntityIndex))

		l.mu.Lock()
		targets := append([]Controller{}, l.controllers...)
		l.mu.Unlock()
		for _, c := range targets {
			c.Publish(gen, true)
		}
	}

	if !matched {
		l.metrics.DecodeFailed()
		l.hub.Broadcast(events.DecodeFailed("no codec matched"))
	}
}

// verifyRoundTrip re-encodes a successful decode and logs a mismatch
// against the originally received bytes -- a self-consistency check, not a
// correctness gate: a mismatch never blocks dispatch since the decode
// itself already validated checksums/CRCs.
func (l *Listener) verifyRoundTrip(cd codec.Codec, enc gencmd.EncCmd, params gencmd.ControllerParams, original frame.Frame) {
	reencoded, err := cd.Encode(enc, params)
	if err != nil {
		l.log.Warn("self-test: re-encode failed", logger.String("codec", cd.ID()), logger.Error(err))
		return
	}
	if !reencoded.DataEqual(original) {
		l.log.Warn("self-test: re-encode mismatch",
			logger.String("codec", cd.ID()),
			logger.Uint8("tx_count", params.TxCount),
			logger.Uint16("seed", params.Seed),
			logger.String("received", original.String()),
			logger.String("reencoded", reencoded.String()))
	}
}

func (l *Listener) isDuplicate(fingerprint string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.seen[fingerprint]; ok && now.Sub(e.firstSeen) <= DedupeWindow {
		return true
	}
	l.seen[fingerprint] = seenEntry{firstSeen: now}
	return false
}

// cleanupOldEntries discards dedupe entries older than DedupeWindow,
// mirroring the teacher's CleanupOldStreams(maxAge).
func (l *Listener) cleanupOldEntries(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.seen {
		if now.Sub(e.firstSeen) > DedupeWindow {
			delete(l.seen, k)
		}
	}
}

// SeenCount reports the number of tracked dedupe fingerprints, for tests.
func (l *Listener) SeenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// fingerprintOf hashes a frame's data-structure bytes only, not the full
// raw payload: two captures that differ only in their AD-flag byte are
// still the same physical broadcast repeating (spec.md section 5's
// data-equal dedupe rule).
func fingerprintOf(data []byte) string {
	sum := sha1.Sum(data)
	return string(sum[:])
}
