// Package translate implements the per-codec translator layer (C4): the
// bidirectional mapping between the abstract GenCmd command space and a
// codec's byte-level EncCmd. Most vendors share one data-driven translator;
// Agarce's FAN_FULL command needs a hand-coded packing.
package translate

import (
	"fmt"
	"sync"

	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// Translator maps between the abstract command space and one vendor
// encoding's byte-level command space. G2E may return zero results (the
// command has no representation in this encoding), one (the common case),
// or several mutually-exclusive candidates (RGB/CWW commands that a single
// encoding can express more than one way) -- callers encode every candidate
// and queue every frame that encodes successfully.
type Translator interface {
	G2E(gen gencmd.GenCmd) []gencmd.EncCmd
	E2G(enc gencmd.EncCmd) (gencmd.GenCmd, bool)
}

// Registry maps an encoding name (e.g. "agarce", "zhijia") to its
// translator. Keyed by encoding rather than the full "<encoding> - <variant>"
// codec id: every variant of one vendor encoding shares the same abstract
// command mapping.
type Registry struct {
	mu    sync.RWMutex
	byEnc map[string]Translator
}

// NewRegistry returns an empty translator registry.
func NewRegistry() *Registry {
	return &Registry{byEnc: make(map[string]Translator)}
}

// Register associates a translator with an encoding name.
func (r *Registry) Register(encoding string, t Translator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byEnc[encoding] = t
}

// Get resolves the translator for an encoding name.
func (r *Registry) Get(encoding string) (Translator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byEnc[encoding]
	if !ok {
		return nil, fmt.Errorf("translate: no translator registered for encoding %q", encoding)
	}
	return t, nil
}

// NewDefaultRegistry wires every production translator: the data-driven
// generic translator for Zhijia, Zhimei and the plain remote encodings, and
// Agarce's bespoke FAN_FULL-aware translator (which falls back to the
// generic mapping for every other command).
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	generic := NewGeneric()
	r.Register("zhijia", generic)
	r.Register("zhimei", generic)
	r.Register("remote", generic)
	r.Register("agarce", NewAgarce(generic))
	return r
}
