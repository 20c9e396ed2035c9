package rpc

import (
	"github.com/godbus/dbus/v5"

	"github.com/dantte-lp/nfcd/internal/adapter"
	"github.com/dantte-lp/nfcd/internal/param"
)

// adapterObject implements org.sailfishos.nfc.Adapter for one adapter,
// translating the adapter's Listener fan-out (§4.3) into D-Bus signals and
// its getters/mutators into exported methods.
type adapterObject struct {
	a   *adapter.Adapter
	srv *Server

	// live is cleared once the adapter is unregistered from the manager,
	// so a signal already in flight from the wrapped adapter is dropped
	// instead of emitted on a path nothing owns anymore. Adapter has no
	// unsubscribe mechanism of its own (listeners are append-only), so
	// this flag is the only way to silence a detached object.
	live bool
}

func newAdapterObject(a *adapter.Adapter, srv *Server) *adapterObject {
	obj := &adapterObject{a: a, srv: srv, live: true}
	a.Subscribe(obj.onAdapterSignal)
	return obj
}

// detach silences the wrapped adapter's signals. Called once the adapter
// has been removed from the manager.
func (o *adapterObject) detach() {
	o.live = false
}

// onLoop runs fn on the Server's dispatch loop, serializing it against
// every other call that touches this object's Adapter. Tests that
// construct an adapterObject directly (srv == nil) run fn in place,
// since there is no concurrent caller to guard against.
func (o *adapterObject) onLoop(fn func()) {
	if o.srv == nil || o.srv.loop == nil {
		fn()
		return
	}
	o.srv.loop.Do(fn)
}

func (o *adapterObject) onAdapterSignal(s adapter.Signal, detail string) {
	if !o.live {
		return
	}
	name := o.a.Name
	switch {
	case s&adapter.SignalPowered != 0:
		o.srv.emitAdapterSignal(name, "PowerChanged", o.a.Powered())
	case s&adapter.SignalPowerRequested != 0:
		o.srv.emitAdapterSignal(name, "PowerRequestedChanged", o.a.PowerRequested())
	case s&adapter.SignalMode != 0:
		o.srv.emitAdapterSignal(name, "ModeChanged", uint32(o.a.CurrentMode()))
	case s&adapter.SignalModeRequested != 0:
		o.srv.emitAdapterSignal(name, "ModeRequestedChanged", uint32(o.a.RequestedMode()))
	case s&adapter.SignalEnabledChanged != 0:
		o.srv.emitAdapterSignal(name, "EnabledChanged", o.a.Enabled())
	case s&adapter.SignalTargetPresence != 0:
		o.srv.emitAdapterSignal(name, "TargetPresenceChanged", o.a.TargetPresent())
	case s&adapter.SignalTagAdded != 0:
		o.srv.emitAdapterSignal(name, "TagAdded", detail)
	case s&adapter.SignalTagRemoved != 0:
		o.srv.emitAdapterSignal(name, "TagRemoved", detail)
	case s&adapter.SignalPeerAdded != 0:
		o.srv.emitAdapterSignal(name, "PeerAdded", detail)
	case s&adapter.SignalPeerRemoved != 0:
		o.srv.emitAdapterSignal(name, "PeerRemoved", detail)
	case s&adapter.SignalHostAdded != 0:
		o.srv.emitAdapterSignal(name, "HostAdded", detail)
	case s&adapter.SignalHostRemoved != 0:
		o.srv.emitAdapterSignal(name, "HostRemoved", detail)
	case s&adapter.SignalParamChanged != 0:
		o.srv.emitAdapterSignal(name, "ParamChanged", detail)
	}
}

// -------------------------------------------------------------------------
// Getters
// -------------------------------------------------------------------------

// GetAll returns the adapter's full snapshot as a single call, mirroring
// the reference daemon's combined-property getter.
func (o *adapterObject) GetAll() (string, uint32, uint32, bool, bool, uint32, bool, []string, []string, []string, *dbus.Error) {
	var snap adapter.Snapshot
	o.onLoop(func() { snap = o.a.Snapshot() })
	return snap.Name, uint32(snap.Techs), uint32(snap.SupportedModes), snap.Enabled,
		snap.Powered, uint32(snap.Mode), snap.TargetPresent, snap.Tags, snap.Peers, snap.Hosts, nil
}

func (o *adapterObject) GetEnabled() (enabled bool, _ *dbus.Error) {
	o.onLoop(func() { enabled = o.a.Enabled() })
	return enabled, nil
}

func (o *adapterObject) GetPowered() (powered bool, _ *dbus.Error) {
	o.onLoop(func() { powered = o.a.Powered() })
	return powered, nil
}

func (o *adapterObject) GetMode() (mode uint32, _ *dbus.Error) {
	o.onLoop(func() { mode = uint32(o.a.CurrentMode()) })
	return mode, nil
}

func (o *adapterObject) GetSupportedModes() (modes uint32, _ *dbus.Error) {
	o.onLoop(func() { modes = uint32(o.a.SupportedModes()) })
	return modes, nil
}

func (o *adapterObject) GetTargetPresent() (present bool, _ *dbus.Error) {
	o.onLoop(func() { present = o.a.TargetPresent() })
	return present, nil
}

func (o *adapterObject) GetTags() (tags []string, _ *dbus.Error) {
	o.onLoop(func() { tags = o.a.Snapshot().Tags })
	return tags, nil
}

func (o *adapterObject) GetPeers() (peers []string, _ *dbus.Error) {
	o.onLoop(func() { peers = o.a.Snapshot().Peers })
	return peers, nil
}

func (o *adapterObject) GetHosts() (hosts []string, _ *dbus.Error) {
	o.onLoop(func() { hosts = o.a.Snapshot().Hosts })
	return hosts, nil
}

// -------------------------------------------------------------------------
// Power / mode mutators
// -------------------------------------------------------------------------

// SetEnabled administratively enables or disables the adapter (§4.3).
func (o *adapterObject) SetEnabled(enabled bool) *dbus.Error {
	o.onLoop(func() { o.a.SetEnabled(enabled) })
	return nil
}

// RequestPower issues (or withdraws) the caller's power request (§4.3).
func (o *adapterObject) RequestPower(requested bool) *dbus.Error {
	o.onLoop(func() { o.a.RequestPower(requested) })
	return nil
}

// RequestMode contributes enable/disable mode bits to the adapter's own
// aggregation (distinct from the manager's cross-adapter stack, §4.3 vs
// §4.6); the adapter has no token discipline of its own, so this simply
// re-requests the composed value the manager last pushed OR'd with enable
// and cleared of disable.
func (o *adapterObject) RequestMode(enable, disable uint32) (next uint32, _ *dbus.Error) {
	o.onLoop(func() {
		n := (o.a.RequestedMode() | adapter.Mode(enable)) &^ adapter.Mode(disable)
		o.a.RequestMode(n)
		next = uint32(n)
	})
	return next, nil
}

// -------------------------------------------------------------------------
// Parameter overlay (§4.2)
// -------------------------------------------------------------------------

// SubmitParamRequest submits a parameter overlay request. names, bools and
// byteValues are parallel arrays (D-Bus has no native map-to-interface{}
// Value type here); for a given index, bools[i] is meaningful when
// names[i]'s id is bool-typed and byteValues[i] is meaningful when it is
// byte-sequence-typed (§3 "Parameter"), matching whichever field of
// param.Value the id actually uses. reset clears every earlier request's
// contribution, for all IDs, before this request's values apply.
func (o *adapterObject) SubmitParamRequest(names []string, bools []bool, byteValues [][]byte, reset bool) (uint64, *dbus.Error) {
	values := make(map[param.ID]param.Value, len(names))
	for i, n := range names {
		id, err := param.ParseID(n)
		if err != nil {
			return 0, mapError(err, "submit param request")
		}
		if id.IsBytes() {
			values[id] = param.Value{Bytes: byteValues[i]}
		} else {
			values[id] = param.Value{Bool: bools[i]}
		}
	}

	var tok param.Token
	var err error
	o.onLoop(func() { tok, err = o.a.Params.Submit(values, reset) })
	if err != nil {
		return 0, mapError(err, "submit param request")
	}
	return uint64(tok), nil
}

// ReleaseParamToken releases a previously submitted parameter request.
func (o *adapterObject) ReleaseParamToken(token uint64) *dbus.Error {
	var err error
	o.onLoop(func() { err = o.a.Params.Release(param.Token(token)) })
	if err != nil {
		return mapError(err, "release param token")
	}
	return nil
}

// GetParam returns the current value of a single parameter. Only one of
// boolVal/bytesVal is meaningful, per id.IsBytes (§3 "Parameter").
func (o *adapterObject) GetParam(name string) (boolVal bool, bytesVal []byte, ok bool, _ *dbus.Error) {
	id, err := param.ParseID(name)
	if err != nil {
		return false, nil, false, mapError(err, "get param")
	}
	val, present := o.a.Params.Get(id)
	return val.Bool, val.Bytes, present, nil
}

// -------------------------------------------------------------------------
// Peer service registry (§4.5)
// -------------------------------------------------------------------------

// RegisterService registers an LLCP service on this adapter, returning the
// allocated SAP.
func (o *adapterObject) RegisterService(name string, acceptor, originator bool) (byte, *dbus.Error) {
	svc, err := o.a.Services.Register(name, acceptor, originator, nil)
	if err != nil {
		return 0, mapError(err, "register service")
	}
	return byte(svc.SAP), nil
}

// UnregisterService removes a previously registered LLCP service.
func (o *adapterObject) UnregisterService(name string) *dbus.Error {
	if err := o.a.Services.Unregister(name); err != nil {
		return mapError(err, "unregister service")
	}
	return nil
}

// GetServices lists the adapter's currently registered peer services as
// parallel SAP/name arrays.
func (o *adapterObject) GetServices() ([]byte, []string, *dbus.Error) {
	list := o.a.Services.List()
	saps := make([]byte, len(list))
	names := make([]string, len(list))
	for i, svc := range list {
		saps[i] = byte(svc.SAP)
		names[i] = svc.Name
	}
	return saps, names, nil
}
