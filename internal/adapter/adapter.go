// Package adapter implements the core NFC adapter engine: the power and
// mode state machines, tag/peer/host lifecycle bookkeeping, and batched
// notification fan-out for one radio controller (§4.3).
//
// An Adapter is not safe for concurrent use. Per the single-threaded
// cooperative model (§5), every exported method must be called from the
// one goroutine that owns the adapter — ordinarily the dispatch loop
// (see internal/dispatch). Driver completion callbacks and
// RPC-triggered mutations are expected to be posted onto that same loop
// rather than called from arbitrary goroutines.
package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dantte-lp/nfcd/internal/param"
	"github.com/dantte-lp/nfcd/internal/peer"
)

// Tech is a bitmask of radio technologies an adapter supports.
type Tech uint8

const (
	TechA Tech = 1 << iota
	TechB
	TechF
)

// Mode is a bitmask of card/reader operating modes.
type Mode uint8

const (
	ModeReaderWriter Mode = 1 << iota
	ModeCardEmulation
	ModePeerInitiator
	ModePeerTarget
)

// Signal identifies one kind of adapter notification (§4.3, grounded in
// nfc_adapter.c's signal enum). Bits double as positions in the pending
// notification bitmask, emitted in this order by emitPending.
type Signal uint32

const (
	SignalEnabledChanged Signal = 1 << iota
	SignalPowered
	SignalPowerRequested
	SignalMode
	SignalModeRequested
	SignalTargetPresence
	SignalParamChanged
)

func (s Signal) String() string {
	switch s {
	case SignalEnabledChanged:
		return "enabled-changed"
	case SignalPowered:
		return "powered"
	case SignalPowerRequested:
		return "power-requested"
	case SignalMode:
		return "mode"
	case SignalModeRequested:
		return "mode-requested"
	case SignalTargetPresence:
		return "target-presence"
	case SignalParamChanged:
		return "param-changed"
	case SignalTagAdded:
		return "tag-added"
	case SignalTagRemoved:
		return "tag-removed"
	case SignalPeerAdded:
		return "peer-added"
	case SignalPeerRemoved:
		return "peer-removed"
	case SignalHostAdded:
		return "host-added"
	case SignalHostRemoved:
		return "host-removed"
	default:
		return fmt.Sprintf("Signal(%d)", uint32(s))
	}
}

// EntityKind distinguishes the three short-lived entity types an adapter
// tracks (§3).
type EntityKind int

const (
	EntityTag EntityKind = iota
	EntityPeer
	EntityHost
)

func (k EntityKind) String() string {
	switch k {
	case EntityTag:
		return "tag"
	case EntityPeer:
		return "peer"
	case EntityHost:
		return "host"
	default:
		return "entity"
	}
}

// EntityEvent identifies the two lifecycle notifications an entity can
// produce.
type EntityEvent int

const (
	EntityAdded EntityEvent = iota
	EntityRemoved
)

// Entity is a tracked tag, peer, or host (§3).
type Entity struct {
	Name    string
	Kind    EntityKind
	Present bool
}

// Driver is the set of hooks an adapter implementation (a radio backend)
// must supply (§6). A driver that does not implement a given method
// behaves, per §6, as if that method always failed; Go backends express
// this by returning false/an error rather than by omitting the method.
type Driver interface {
	param.Target

	SubmitPowerRequest(on bool) bool
	CancelPowerRequest()
	SubmitModeRequest(mode Mode) bool
	CancelModeRequest()

	SupportedTechs() Tech
	SupportedModes() Mode
}

// ErrEntityNotFound indicates RemoveByName was called with a name not
// currently tracked.
var ErrEntityNotFound = errors.New("adapter: entity not found")

// Listener receives adapter notifications. detail carries the entity
// name for entity-lifecycle events and the parameter name for
// SignalParamChanged; it is empty for the other signals.
type Listener func(signal Signal, detail string)

// Adapter is the handle for one radio controller (§3).
type Adapter struct {
	Name string

	techs          Tech
	supportedModes Mode

	enabled        bool
	powered        bool
	powerRequested bool
	powerPending   bool
	powerTarget    bool

	mode          Mode
	modeRequested Mode
	modePending   bool
	modeTarget    Mode

	rawTargetPresent bool
	targetPresent    bool

	tags  map[string]*Entity
	peers map[string]*Entity
	hosts map[string]*Entity

	nextTagIndex, nextPeerIndex, nextHostIndex int

	Params *param.Engine

	// Services is this adapter's peer-service registry (§4.5), attached
	// unconditionally so peer arrival/departure always has somewhere to
	// fan out to.
	Services *peer.Registry

	driver Driver
	logger *slog.Logger

	pendingSignals  Signal
	pendingParamIDs map[param.ID]struct{}

	listeners []Listener
}

// New creates an Adapter named name, backed by driver. The adapter starts
// disabled, unpowered, and with no tracked entities.
func New(name string, driver Driver, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		Name:            name,
		techs:           driver.SupportedTechs(),
		supportedModes:  driver.SupportedModes(),
		tags:            make(map[string]*Entity),
		peers:           make(map[string]*Entity),
		hosts:           make(map[string]*Entity),
		driver:          driver,
		logger:          logger.With("adapter", name),
		pendingParamIDs: make(map[param.ID]struct{}),
		Services:        peer.New(),
	}
	a.Params = param.NewEngine(driver)
	a.Params.SubscribeAll(func(id param.ID, _ param.Value) {
		a.queueParamChanged(id)
	})

	return a
}

// Subscribe registers fn to receive every notification this adapter emits.
func (a *Adapter) Subscribe(fn Listener) {
	a.listeners = append(a.listeners, fn)
}

// Techs reports the set of radio technologies this adapter supports.
func (a *Adapter) Techs() Tech { return a.techs }

// SupportedModes reports the modes this adapter's driver can operate in.
func (a *Adapter) SupportedModes() Mode { return a.supportedModes }

// Enabled reports whether the adapter is administratively permitted to
// be powered.
func (a *Adapter) Enabled() bool { return a.enabled }

// Powered reports whether the radio is currently energized.
func (a *Adapter) Powered() bool { return a.powered }

// PowerRequested reports client-requested power intent.
func (a *Adapter) PowerRequested() bool { return a.powerRequested }

// CurrentMode reports the adapter's actual current mode.
func (a *Adapter) CurrentMode() Mode { return a.mode }

// RequestedMode reports the client-requested mode.
func (a *Adapter) RequestedMode() Mode { return a.modeRequested }

// TargetPresent reports the disjunction of presence across all tracked
// tags, peers, and hosts, plus any raw driver-reported presence (§3
// invariant d).
func (a *Adapter) TargetPresent() bool { return a.targetPresent }

// queueSignal marks signal as pending; it is delivered by the next
// emitPending call (§4.3 "Notification ordering").
func (a *Adapter) queueSignal(s Signal) {
	a.pendingSignals |= s
}

func (a *Adapter) queueParamChanged(id param.ID) {
	a.pendingParamIDs[id] = struct{}{}
	a.queueSignal(SignalParamChanged)
}

// emitPending flushes queued signals to listeners in declaration order,
// then clears the pending set. Entity add/remove notifications are not
// batched here; they are delivered synchronously at the point of mutation
// because each already carries its own distinguishing detail (the entity
// name), unlike the coarse booleans this bitmask tracks.
func (a *Adapter) emitPending() {
	order := []Signal{
		SignalEnabledChanged,
		SignalPowered,
		SignalPowerRequested,
		SignalMode,
		SignalModeRequested,
		SignalTargetPresence,
		SignalParamChanged,
	}

	pending := a.pendingSignals
	a.pendingSignals = 0

	for _, sig := range order {
		if pending&sig == 0 {
			continue
		}

		if sig == SignalParamChanged {
			ids := a.pendingParamIDs
			a.pendingParamIDs = make(map[param.ID]struct{})
			for id := range ids {
				a.emit(sig, id.String())
			}
			continue
		}

		a.emit(sig, "")
	}
}

func (a *Adapter) emit(signal Signal, detail string) {
	for _, fn := range a.listeners {
		fn(signal, detail)
	}
}

// recomputeTargetPresence updates targetPresent from the raw driver flag
// and every tracked entity's Present flag, queuing SignalTargetPresence
// if it changed. Must be called with mutation already in effect; callers
// still must call emitPending themselves.
func (a *Adapter) recomputeTargetPresence() {
	present := a.rawTargetPresent
	if !present {
		for _, e := range a.tags {
			if e.Present {
				present = true
				break
			}
		}
	}
	if !present {
		for _, e := range a.peers {
			if e.Present {
				present = true
				break
			}
		}
	}
	if !present {
		for _, e := range a.hosts {
			if e.Present {
				present = true
				break
			}
		}
	}

	if present != a.targetPresent {
		a.targetPresent = present
		a.queueSignal(SignalTargetPresence)
	}
}

// TargetNotify records a raw driver presence notification (§6:
// target_notify(present)). It participates in TargetPresent alongside
// entity-level presence flags.
func (a *Adapter) TargetNotify(present bool) {
	a.rawTargetPresent = present
	a.recomputeTargetPresence()
	a.emitPending()
}

// Snapshot describes an adapter's externally visible state (for RPC getters, §6).
type Snapshot struct {
	Name           string
	Techs          Tech
	SupportedModes Mode
	Enabled        bool
	Powered        bool
	PowerRequested bool
	Mode           Mode
	ModeRequested  Mode
	TargetPresent  bool
	Tags           []string
	Peers          []string
	Hosts          []string
}

// Snapshot returns the adapter's current externally visible state.
func (a *Adapter) Snapshot() Snapshot {
	return Snapshot{
		Name:           a.Name,
		Techs:          a.techs,
		SupportedModes: a.supportedModes,
		Enabled:        a.enabled,
		Powered:        a.powered,
		PowerRequested: a.powerRequested,
		Mode:           a.mode,
		ModeRequested:  a.modeRequested,
		TargetPresent:  a.targetPresent,
		Tags:           sortedNames(a.tags),
		Peers:          sortedNames(a.peers),
		Hosts:          sortedNames(a.hosts),
	}
}

func sortedNames(m map[string]*Entity) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
