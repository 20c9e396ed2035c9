// Package manager implements the top-level container described in §4.6:
// the set of adapters, mode aggregation via a request-stack
// discipline analogous to the parameter overlay in §3/§4.2, and
// lifecycle orchestration (start/stop) with its own notification
// fan-out, grounded the way internal/bfd/manager.go owns its session
// maps and dispatches state-change notifications.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dantte-lp/nfcd/internal/adapter"
)

// Event identifies one manager-level notification.
type Event int

const (
	EventAdapterAdded Event = iota
	EventAdapterRemoved
	EventModeChanged
	EventStopped
)

func (e Event) String() string {
	switch e {
	case EventAdapterAdded:
		return "adapter-added"
	case EventAdapterRemoved:
		return "adapter-removed"
	case EventModeChanged:
		return "mode-changed"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Listener receives manager notifications. detail carries the adapter
// name for adapter add/remove events; it is empty otherwise.
type Listener func(event Event, detail string)

// ErrDuplicateAdapter indicates AddAdapter was called with a name that is
// already registered.
var ErrDuplicateAdapter = errors.New("manager: adapter already registered")

// ErrUnknownAdapter indicates an operation named an adapter that is not
// registered.
var ErrUnknownAdapter = errors.New("manager: unknown adapter")

// ErrUnknownModeToken indicates ReleaseModeToken was called with a token
// that is not currently registered.
var ErrUnknownModeToken = errors.New("manager: unknown mode token")

// ModeToken identifies one registered mode request for later release.
type ModeToken uint64

type modeRequest struct {
	token   ModeToken
	enable  adapter.Mode
	disable adapter.Mode
}

// Manager owns the set of adapters and aggregates mode requests across
// them for RPC clients (§4.6). It keeps no aggregate enable state: each
// adapter's enabled flag is set on that adapter, and the manager only
// changes it when Stop disables every adapter.
type Manager struct {
	mu sync.Mutex

	adapters map[string]*adapter.Adapter

	modeRequests []*modeRequest
	nextToken    ModeToken
	effective    adapter.Mode

	stopCode int
	stopped  bool

	logger    *slog.Logger
	listeners []Listener
}

// New creates an empty Manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		adapters: make(map[string]*adapter.Adapter),
		logger:   logger.With("component", "manager"),
	}
}

// Subscribe registers fn to receive every notification this manager emits.
func (m *Manager) Subscribe(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) emit(event Event, detail string) {
	for _, fn := range m.listeners {
		fn(event, detail)
	}
}

// AddAdapter registers a, assigning it the manager's current aggregate
// mode immediately. The adapter's enabled flag is left as it is.
func (m *Manager) AddAdapter(a *adapter.Adapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.adapters[a.Name]; exists {
		return fmt.Errorf("manager: add adapter %q: %w", a.Name, ErrDuplicateAdapter)
	}

	m.adapters[a.Name] = a
	a.RequestMode(m.effective)

	m.emit(EventAdapterAdded, a.Name)

	return nil
}

// RemoveAdapter unregisters the named adapter.
func (m *Manager) RemoveAdapter(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.adapters[name]; !exists {
		return fmt.Errorf("manager: remove adapter %q: %w", name, ErrUnknownAdapter)
	}

	delete(m.adapters, name)
	m.emit(EventAdapterRemoved, name)

	return nil
}

// Adapter looks up a registered adapter by name.
func (m *Manager) Adapter(name string) (*adapter.Adapter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.adapters[name]
	return a, ok
}

// Adapters returns every registered adapter, sorted by name.
func (m *Manager) Adapters() []*adapter.Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*adapter.Adapter, len(names))
	for i, name := range names {
		out[i] = m.adapters[name]
	}
	return out
}

// EffectiveMode reports the manager's current aggregate mode
// composition, as pushed to every adapter.
func (m *Manager) EffectiveMode() adapter.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.effective
}

// RequestMode registers a new mode request token contributing enable and
// disable bitmasks to the manager's per-manager composition (§4.6). It
// always succeeds, mirroring §7's parameter-request policy: an
// unsupported bit is silently dropped per adapter during that adapter's
// own reconciliation (§4.3 "Mode masking"), not here.
func (m *Manager) RequestMode(enable, disable adapter.Mode) ModeToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextToken++
	tok := m.nextToken

	m.modeRequests = append(m.modeRequests, &modeRequest{token: tok, enable: enable, disable: disable})
	m.recomputeMode()

	return tok
}

// ReleaseModeToken releases a previously issued mode token, recomputing
// the aggregate and re-pushing it to every adapter.
func (m *Manager) ReleaseModeToken(tok ModeToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, r := range m.modeRequests {
		if r.token == tok {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("manager: release mode token %d: %w", tok, ErrUnknownModeToken)
	}

	m.modeRequests = append(m.modeRequests[:idx], m.modeRequests[idx+1:]...)
	m.recomputeMode()

	return nil
}

// recomputeMode implements §8 property 5: effective mode is
// (⋃ enable) \ (⋃ disable where no enable covers the bit). An enable bit
// always dominates a disable bit for the same mode (§4.6), so the
// subtracted term can only ever remove bits already absent from the
// union of enables; the formula is kept explicit, not algebraically
// collapsed, so the dominance rule stays visible at the call site. Must
// be called with m.mu held.
func (m *Manager) recomputeMode() {
	var enableUnion, disableUnion adapter.Mode
	for _, r := range m.modeRequests {
		enableUnion |= r.enable
		disableUnion |= r.disable
	}

	disableUncovered := disableUnion &^ enableUnion
	next := enableUnion &^ disableUncovered

	if next == m.effective {
		return
	}
	m.effective = next

	for _, a := range m.adapters {
		a.RequestMode(next)
	}

	m.emit(EventModeChanged, "")
}

// Start fans out plugin start. In this core, "plugin start" is the
// manager publishing its current mode composition to every
// already-registered adapter; driver and RPC-plugin startup themselves
// are outside this package's scope (§1).
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.adapters {
		a.RequestMode(m.effective)
	}
}

// Stop records the first nonzero error code, disables every adapter, and
// emits the stopped event (§4.6). Subsequent calls are no-ops beyond
// returning the originally recorded code.
func (m *Manager) Stop(code int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return m.stopCode
	}

	m.stopped = true
	if code != 0 {
		m.stopCode = code
	}

	for _, a := range m.adapters {
		a.SetEnabled(false)
	}

	m.emit(EventStopped, "")

	return m.stopCode
}

// Stopped reports whether Stop has been called.
func (m *Manager) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
