package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/kbable/ble-adv-bridge/pkg/codec"
	"github.com/kbable/ble-adv-bridge/pkg/controller"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
	"github.com/kbable/ble-adv-bridge/pkg/logger"
)

// API serves the debug/control HTTP endpoints a running daemon exposes:
// decoding an arbitrary advertisement body against every registered codec
// (raw_decode), a point-in-time status summary, and the per-controller
// pair/unpair/all_on/all_off/set_timer/cmd/inject_raw operations spec.md
// section 6 describes as host-registered handlers keyed by controller id.
// Adapted from the teacher's pkg/web/api.go DTO-and-handler shape.
type API struct {
	log      *logger.Logger
	registry *codec.Registry
	hub      *Hub
	started  time.Time

	mu          sync.RWMutex
	controllers map[string]*controller.Controller
}

// NewAPI returns an API serving decode requests against registry and
// reporting hub's client count in its status response.
func NewAPI(registry *codec.Registry, hub *Hub, log *logger.Logger) *API {
	return &API{
		log:         log.WithComponent("events.api"),
		registry:    registry,
		hub:         hub,
		started:     time.Now(),
		controllers: make(map[string]*controller.Controller),
	}
}

// RegisterController makes ctrl reachable at /control/<label>/... , the
// HTTP surface for the pair_<id>/unpair_<id>/all_on_<id>/all_off_<id>/
// set_timer_<id>/cmd_<id>/inject_raw_<id> handlers spec.md section 6 calls
// for (label stands in for <id> here).
func (a *API) RegisterController(label string, ctrl *controller.Controller) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.controllers[label] = ctrl
}

func (a *API) controllerByLabel(w http.ResponseWriter, r *http.Request) (*controller.Controller, bool) {
	label := r.PathValue("label")
	a.mu.RLock()
	ctrl, ok := a.controllers[label]
	a.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown controller "+label, http.StatusNotFound)
		return nil, false
	}
	return ctrl, true
}

// HandlePair implements pair_<id>: POST /control/<label>/pair.
func (a *API) HandlePair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctrl, ok := a.controllerByLabel(w, r)
	if !ok {
		return
	}
	ctrl.Pair()
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnpair implements unpair_<id>: POST /control/<label>/unpair.
func (a *API) HandleUnpair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctrl, ok := a.controllerByLabel(w, r)
	if !ok {
		return
	}
	ctrl.Unpair()
	w.WriteHeader(http.StatusNoContent)
}

// HandleAllOn implements all_on_<id>: POST /control/<label>/all_on.
func (a *API) HandleAllOn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctrl, ok := a.controllerByLabel(w, r)
	if !ok {
		return
	}
	ctrl.AllOn()
	w.WriteHeader(http.StatusNoContent)
}

// HandleAllOff implements all_off_<id>: POST /control/<label>/all_off.
func (a *API) HandleAllOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctrl, ok := a.controllerByLabel(w, r)
	if !ok {
		return
	}
	ctrl.AllOff()
	w.WriteHeader(http.StatusNoContent)
}

type setTimerRequest struct {
	Minutes float64 `json:"minutes"`
}

// HandleSetTimer implements set_timer_<id>: POST /control/<label>/set_timer
// with a JSON body {"minutes": <float>}.
func (a *API) HandleSetTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctrl, ok := a.controllerByLabel(w, r)
	if !ok {
		return
	}
	var req setTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctrl.SetTimer(req.Minutes)
	w.WriteHeader(http.StatusNoContent)
}

type cmdRequest struct {
	Cmd    uint8     `json:"cmd"`
	Param1 uint8     `json:"param1"`
	Args   [3]uint8  `json:"args"`
}

// HandleCmd implements cmd_<id>: POST /control/<label>/cmd with a raw
// EncCmd JSON body, bypassing translation entirely.
func (a *API) HandleCmd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctrl, ok := a.controllerByLabel(w, r)
	if !ok {
		return
	}
	var req cmdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctrl.CustomCmd(gencmd.EncCmd{Cmd: req.Cmd, Param1: req.Param1, Args: req.Args})
	w.WriteHeader(http.StatusNoContent)
}

type injectRawRequest struct {
	Hex string `json:"hex"`
}

// HandleInjectRaw implements inject_raw_<id>: POST
// /control/<label>/inject_raw with a JSON body {"hex": "<hex string>"},
// bypassing translation and encoding entirely.
func (a *API) HandleInjectRaw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctrl, ok := a.controllerByLabel(w, r)
	if !ok {
		return
	}
	var req injectRawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := ctrl.InjectRaw(req.Hex); err != nil {
		http.Error(w, "invalid hex: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type decodeRequest struct {
	Hex string `json:"hex"`
}

type decodeResult struct {
	CodecID  string `json:"codec_id"`
	Encoding string `json:"encoding"`
	Variant  string `json:"variant"`
	Cmd      uint8  `json:"cmd"`
	Param1   uint8  `json:"param1"`
	Args     [3]uint8 `json:"args"`
}

type decodeResponse struct {
	Matches []decodeResult `json:"matches"`
}

// HandleDecode implements raw_decode as an HTTP endpoint: POST a hex-encoded
// advertisement body, get back every codec that successfully decoded it.
// Multiple matches are possible and expected -- several vendor encodings
// can share enough wire structure to both parse the same bytes without
// error (spec.md section 8's decode ambiguity note).
func (a *API) HandleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	f, err := frame.FromHexString(req.Hex)
	if err != nil {
		http.Error(w, "invalid hex: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := decodeResponse{}
	for _, cd := range a.registry.All() {
		enc, _, ok := cd.Decode(f)
		if !ok {
			continue
		}
		resp.Matches = append(resp.Matches, decodeResult{
			CodecID:  cd.ID(),
			Encoding: cd.Encoding(),
			Variant:  cd.Variant(),
			Cmd:      enc.Cmd,
			Param1:   enc.Param1,
			Args:     enc.Args,
		})
	}

	writeJSON(w, resp)
}

type statusResponse struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	Clients       int     `json:"event_clients"`
	Codecs        []string `json:"codecs"`
}

// HandleStatus reports process uptime, connected event-feed client count,
// and the set of registered codec ids.
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		UptimeSeconds: time.Since(a.started).Seconds(),
		Clients:       a.hub.ClientCount(),
		Codecs:        a.registry.IDs(),
	})
}

// HandleHealth is a minimal liveness probe.
func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}
