// Package codec implements the multi-variant frame codec layer: the
// registry of known (encoding, variant) pairs and the per-vendor encode/
// decode implementations (Agarce, Zhijia v0/v1/v2/remote, Zhimei v0/v1/v2,
// and a generic remote). Every codec shares the Codec interface contract;
// the variant-specific bit layouts live in their own files.
package codec

import (
	"fmt"
	"sync"

	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// AllVariant is the pseudo-variant id meaning "every variant of this
// encoding": on send, emit through all of them; on receive, any may match.
const AllVariant = "All"

// Codec is the contract every vendor-specific implementation satisfies.
type Codec interface {
	// ID returns the registry key "<encoding> - <variant>".
	ID() string
	Encoding() string
	Variant() string

	// Header returns the codec's fixed prefix bytes, matched against the
	// first len(Header()) bytes of every Encode result (header stability).
	Header() []byte

	// Encode builds a Frame from a vendor command and controller identity.
	Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error)

	// Decode attempts to interpret f as this codec's body. ok is false on
	// any validation failure (checksum, CRC, header, or constant mismatch)
	// -- callers must treat that as "not mine", never as an error.
	Decode(f frame.Frame) (enc gencmd.EncCmd, params gencmd.ControllerParams, ok bool)
}

// Registry is a process-wide map of codec id to implementation.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
	byEnc  map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Codec),
		byEnc:  make(map[string][]string),
	}
}

// Register adds c to the registry, keyed by its ID().
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.ID()] = c
	r.byEnc[c.Encoding()] = append(r.byEnc[c.Encoding()], c.ID())
}

// Get resolves a codec id, expanding the "<encoding> - All" pseudo-variant
// into every registered variant of that encoding.
func (r *Registry) Get(id string) ([]Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	encoding, variant, err := splitID(id)
	if err != nil {
		return nil, err
	}
	if variant == AllVariant {
		ids, ok := r.byEnc[encoding]
		if !ok || len(ids) == 0 {
			return nil, fmt.Errorf("codec: no variants registered for encoding %q", encoding)
		}
		out := make([]Codec, 0, len(ids))
		for _, variantID := range ids {
			out = append(out, r.codecs[variantID])
		}
		return out, nil
	}

	c, ok := r.codecs[id]
	if !ok {
		return nil, fmt.Errorf("codec: unknown id %q", id)
	}
	return []Codec{c}, nil
}

// All returns every registered codec, used by the listener to probe an
// inbound frame against every known encoding/variant.
func (r *Registry) All() []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Codec, 0, len(r.codecs))
	for _, c := range r.codecs {
		out = append(out, c)
	}
	return out
}

// IDs returns every registered codec id, plus the "<encoding> - All"
// pseudo-variant for every distinct encoding, for enumeration in
// configuration UIs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.codecs)+len(r.byEnc))
	for id := range r.codecs {
		out = append(out, id)
	}
	for enc := range r.byEnc {
		out = append(out, fmt.Sprintf("%s - %s", enc, AllVariant))
	}
	return out
}

func splitID(id string) (encoding, variant string, err error) {
	const sep = " - "
	idx := indexOf(id, sep)
	if idx < 0 {
		return "", "", fmt.Errorf("codec: malformed id %q, want \"<encoding> - <variant>\"", id)
	}
	return id[:idx], id[idx+len(sep):], nil
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// makeID builds the "<encoding> - <variant>" registry key.
func makeID(encoding, variant string) string {
	return fmt.Sprintf("%s - %s", encoding, variant)
}

// NewDefaultRegistry returns a registry with every production codec
// registered: Agarce, Zhijia v0/v1/v2/remote, Zhimei v0/v1/v2, and the
// generic remote codec.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewAgarce())
	r.Register(NewZhijiaV0())
	r.Register(NewZhijiaV1())
	r.Register(NewZhijiaV2())
	r.Register(NewZhijiaRemote())
	r.Register(NewZhimeiV0())
	r.Register(NewZhimeiV1())
	r.Register(NewZhimeiV2())
	r.Register(NewRemote())
	return r
}
