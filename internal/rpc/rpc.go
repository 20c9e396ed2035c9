// Package rpc exposes the manager's control surface over D-Bus, mirroring
// the reference daemon's org.sailfishos.nfc.Daemon / org.sailfishos.nfc.Adapter
// object model: a fixed daemon object at "/" and one adapter object per
// registered adapter at "/<name>", grounded on internal/server's error-mapping
// idiom but built on godbus/dbus/v5 instead of ConnectRPC (§6).
package rpc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/dantte-lp/nfcd/internal/adapter"
	"github.com/dantte-lp/nfcd/internal/dispatch"
	"github.com/dantte-lp/nfcd/internal/manager"
	"github.com/dantte-lp/nfcd/internal/param"
	"github.com/dantte-lp/nfcd/internal/peer"
)

const (
	// DaemonInterface is the D-Bus interface implemented by the fixed
	// daemon object at "/".
	DaemonInterface = "org.sailfishos.nfc.Daemon"

	// AdapterInterface is the D-Bus interface implemented by each
	// per-adapter object.
	AdapterInterface = "org.sailfishos.nfc.Adapter"

	daemonPath = dbus.ObjectPath("/")
)

// Server owns a D-Bus connection and keeps the exported object tree in
// sync with the manager's adapter set.
type Server struct {
	mu sync.Mutex

	conn    *dbus.Conn
	busName string
	mgr     *manager.Manager
	logger  *slog.Logger

	// loop serializes every call that touches an *adapter.Adapter
	// directly, since Adapter carries no mutex of its own and is only
	// safe when every exported method runs on one goroutine (§5).
	// D-Bus dispatches concurrent method calls on arbitrary goroutines,
	// so adapterObject posts onto loop rather than calling o.a directly.
	loop *dispatch.Loop

	adapters map[string]*adapterObject
}

// Connect dials the requested bus ("system" or "session"), requests
// busName, exports the daemon object and an adapter object for every
// adapter mgr already holds, and subscribes to mgr so later adapter
// additions and removals keep the exported tree in sync (via
// SyncAdapters). loop must already be running (see
// dispatch.Loop.Run) for the lifetime of the returned Server.
func Connect(bus string, busName string, mgr *manager.Manager, loop *dispatch.Loop, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var conn *dbus.Conn
	var err error
	switch bus {
	case "session":
		conn, err = dbus.ConnectSessionBus()
	default:
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("rpc: connect %s bus: %w", bus, err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rpc: request name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("rpc: name %s already owned", busName)
	}

	s := &Server{
		conn:     conn,
		busName:  busName,
		mgr:      mgr,
		logger:   logger.With("component", "rpc"),
		loop:     loop,
		adapters: make(map[string]*adapterObject),
	}

	if err := conn.Export(&daemonObject{mgr: mgr, loop: loop}, daemonPath, DaemonInterface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rpc: export daemon object: %w", err)
	}
	conn.Export(introspectable(DaemonInterface), daemonPath, "org.freedesktop.DBus.Introspectable")

	mgr.Subscribe(s.onManagerEvent)
	s.SyncAdapters()

	return s, nil
}

// Close releases the bus name and closes the connection.
func (s *Server) Close() error {
	s.conn.ReleaseName(s.busName)
	return s.conn.Close()
}

// onManagerEvent reacts to adapter add/remove so the exported object tree
// never drifts from the manager's adapter set.
func (s *Server) onManagerEvent(event manager.Event, detail string) {
	switch event {
	case manager.EventAdapterAdded:
		s.SyncAdapters()
		s.conn.Emit(daemonPath, DaemonInterface+".AdapterAdded", adapterPath(detail))
	case manager.EventAdapterRemoved:
		path := adapterPath(detail)
		s.SyncAdapters()
		s.conn.Emit(daemonPath, DaemonInterface+".AdapterRemoved", path)
	}
}

// SyncAdapters exports an adapter object for every adapter currently
// registered with the manager and unexports any that were removed.
func (s *Server) SyncAdapters() {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]bool)
	for _, a := range s.mgr.Adapters() {
		live[a.Name] = true
		if _, ok := s.adapters[a.Name]; ok {
			continue
		}
		obj := newAdapterObject(a, s)
		path := adapterPath(a.Name)
		if err := s.conn.Export(obj, path, AdapterInterface); err != nil {
			s.logger.Warn("export adapter object failed",
				slog.String("adapter", a.Name), slog.String("error", err.Error()))
			continue
		}
		s.conn.Export(introspectable(AdapterInterface), path, "org.freedesktop.DBus.Introspectable")
		s.adapters[a.Name] = obj
	}

	for name, obj := range s.adapters {
		if live[name] {
			continue
		}
		obj.detach()
		s.conn.Export(nil, adapterPath(name), AdapterInterface)
		delete(s.adapters, name)
	}
}

func adapterPath(name string) dbus.ObjectPath {
	return dbus.ObjectPath("/" + name)
}

// emitAdapterSignal is used by adapterObject to emit a signal on its own
// object path.
func (s *Server) emitAdapterSignal(name string, signalName string, args ...any) {
	if err := s.conn.Emit(adapterPath(name), AdapterInterface+"."+signalName, args...); err != nil {
		s.logger.Warn("emit signal failed",
			slog.String("adapter", name), slog.String("signal", signalName), slog.String("error", err.Error()))
	}
}

// introspectable returns a minimal introspection handler so generic D-Bus
// clients (busctl, d-feet) can discover the interface without bundled XML.
type introspectHandler struct {
	iface string
}

func introspectable(iface string) *introspectHandler {
	return &introspectHandler{iface: iface}
}

func (h *introspectHandler) Introspect() (string, *dbus.Error) {
	return fmt.Sprintf(`<node><interface name="%s"/></node>`, h.iface), nil
}

// -------------------------------------------------------------------------
// Error mapping
// -------------------------------------------------------------------------

// mapError translates the core packages' sentinel errors into named D-Bus
// errors, mirroring internal/server's mapManagerError idiom: classify by
// errors.Is against the sentinel set, fall back to a generic Failed error.
func mapError(err error, op string) *dbus.Error {
	if err == nil {
		return nil
	}

	switch {
	case isAny(err, adapter.ErrEntityNotFound):
		return dbus.NewError("org.sailfishos.nfc.Error.NotFound", []any{fmt.Sprintf("%s: %v", op, err)})
	case isAny(err, manager.ErrDuplicateAdapter):
		return dbus.NewError("org.sailfishos.nfc.Error.AlreadyExists", []any{fmt.Sprintf("%s: %v", op, err)})
	case isAny(err, manager.ErrUnknownAdapter, manager.ErrUnknownModeToken):
		return dbus.NewError("org.sailfishos.nfc.Error.InvalidArgs", []any{fmt.Sprintf("%s: %v", op, err)})
	case isAny(err, param.ErrUnknownID, param.ErrUnknownToken):
		return dbus.NewError("org.sailfishos.nfc.Error.InvalidArgs", []any{fmt.Sprintf("%s: %v", op, err)})
	case isAny(err, peer.ErrSAPExhausted):
		return dbus.NewError("org.sailfishos.nfc.Error.Busy", []any{fmt.Sprintf("%s: %v", op, err)})
	case isAny(err, peer.ErrDuplicateService, peer.ErrDuplicateName):
		return dbus.NewError("org.sailfishos.nfc.Error.AlreadyExists", []any{fmt.Sprintf("%s: %v", op, err)})
	case isAny(err, peer.ErrNotFound):
		return dbus.NewError("org.sailfishos.nfc.Error.NotFound", []any{fmt.Sprintf("%s: %v", op, err)})
	default:
		return dbus.NewError("org.sailfishos.nfc.Error.Failed", []any{fmt.Sprintf("%s: %v", op, err)})
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
