package commands

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	daemonInterface  = "org.sailfishos.nfc.Daemon"
	adapterInterface = "org.sailfishos.nfc.Adapter"
	daemonPath       = dbus.ObjectPath("/")
)

// busClient wraps the D-Bus connection used by every nfcctl subcommand. It
// is initialized once in rootCmd's PersistentPreRunE and closed on exit,
// mirroring the ConnectRPC client lifecycle of the daemon this CLI was
// adapted from.
type busClient struct {
	conn    *dbus.Conn
	busName string
}

func dialBus(bus, busName string) (*busClient, error) {
	var conn *dbus.Conn
	var err error
	switch bus {
	case "session":
		conn, err = dbus.ConnectSessionBus()
	default:
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s bus: %w", bus, err)
	}
	return &busClient{conn: conn, busName: busName}, nil
}

func (c *busClient) Close() error {
	return c.conn.Close()
}

func (c *busClient) daemon() dbus.BusObject {
	return c.conn.Object(c.busName, daemonPath)
}

func (c *busClient) adapter(name string) dbus.BusObject {
	return c.conn.Object(c.busName, dbus.ObjectPath("/"+name))
}

// AdapterNames returns the object-path basenames of every registered
// adapter, via the daemon's GetAdapters.
func (c *busClient) AdapterNames() ([]string, error) {
	var paths []dbus.ObjectPath
	if err := c.daemon().Call(daemonInterface+".GetAdapters", 0).Store(&paths); err != nil {
		return nil, fmt.Errorf("GetAdapters: %w", err)
	}

	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = string(p)[1:]
	}
	return names, nil
}

// AdapterSnapshot is the CLI-facing view of an adapter's GetAll reply.
type AdapterSnapshot struct {
	Name           string
	Techs          uint32
	SupportedModes uint32
	Enabled        bool
	Powered        bool
	Mode           uint32
	TargetPresent  bool
	Tags           []string
	Peers          []string
	Hosts          []string
}

func (c *busClient) Snapshot(name string) (AdapterSnapshot, error) {
	var s AdapterSnapshot
	s.Name = name
	call := c.adapter(name).Call(adapterInterface+".GetAll", 0)
	if call.Err != nil {
		return s, fmt.Errorf("adapter %s GetAll: %w", name, call.Err)
	}
	if err := call.Store(&s.Name, &s.Techs, &s.SupportedModes, &s.Enabled,
		&s.Powered, &s.Mode, &s.TargetPresent, &s.Tags, &s.Peers, &s.Hosts); err != nil {
		return s, fmt.Errorf("adapter %s GetAll: %w", name, err)
	}
	return s, nil
}

func (c *busClient) SetEnabled(name string, enabled bool) error {
	call := c.adapter(name).Call(adapterInterface+".SetEnabled", 0, enabled)
	if call.Err != nil {
		return fmt.Errorf("adapter %s SetEnabled: %w", name, call.Err)
	}
	return nil
}

func (c *busClient) RequestPower(name string, requested bool) error {
	call := c.adapter(name).Call(adapterInterface+".RequestPower", 0, requested)
	if call.Err != nil {
		return fmt.Errorf("adapter %s RequestPower: %w", name, call.Err)
	}
	return nil
}

func (c *busClient) RequestMode(name string, enable, disable uint32) (uint32, error) {
	var effective uint32
	call := c.adapter(name).Call(adapterInterface+".RequestMode", 0, enable, disable)
	if call.Err != nil {
		return 0, fmt.Errorf("adapter %s RequestMode: %w", name, call.Err)
	}
	if err := call.Store(&effective); err != nil {
		return 0, fmt.Errorf("adapter %s RequestMode: %w", name, err)
	}
	return effective, nil
}

// RequestDaemonMode contributes an enable/disable mode token to the
// manager's cross-adapter mode stack (§4.6), distinct from RequestMode's
// per-adapter aggregation above.
func (c *busClient) RequestDaemonMode(enable, disable uint32) (token uint64, next uint32, err error) {
	call := c.daemon().Call(daemonInterface+".RequestMode", 0, enable, disable)
	if call.Err != nil {
		return 0, 0, fmt.Errorf("daemon RequestMode: %w", call.Err)
	}
	if err := call.Store(&token, &next); err != nil {
		return 0, 0, fmt.Errorf("daemon RequestMode: %w", err)
	}
	return token, next, nil
}

// ReleaseDaemonModeToken releases a previously issued manager-level mode
// token.
func (c *busClient) ReleaseDaemonModeToken(token uint64) error {
	call := c.daemon().Call(daemonInterface+".ReleaseModeToken", 0, token)
	if call.Err != nil {
		return fmt.Errorf("daemon ReleaseModeToken: %w", call.Err)
	}
	return nil
}

func (c *busClient) SubmitParamRequest(name string, names []string, bools []bool, byteValues [][]byte, reset bool) (uint64, error) {
	var token uint64
	call := c.adapter(name).Call(adapterInterface+".SubmitParamRequest", 0, names, bools, byteValues, reset)
	if call.Err != nil {
		return 0, fmt.Errorf("adapter %s SubmitParamRequest: %w", name, call.Err)
	}
	if err := call.Store(&token); err != nil {
		return 0, fmt.Errorf("adapter %s SubmitParamRequest: %w", name, err)
	}
	return token, nil
}

func (c *busClient) ReleaseParamToken(name string, token uint64) error {
	call := c.adapter(name).Call(adapterInterface+".ReleaseParamToken", 0, token)
	if call.Err != nil {
		return fmt.Errorf("adapter %s ReleaseParamToken: %w", name, call.Err)
	}
	return nil
}

func (c *busClient) GetParam(name, id string) (boolVal bool, bytesVal []byte, ok bool, err error) {
	call := c.adapter(name).Call(adapterInterface+".GetParam", 0, id)
	if call.Err != nil {
		return false, nil, false, fmt.Errorf("adapter %s GetParam: %w", name, call.Err)
	}
	if err := call.Store(&boolVal, &bytesVal, &ok); err != nil {
		return false, nil, false, fmt.Errorf("adapter %s GetParam: %w", name, err)
	}
	return boolVal, bytesVal, ok, nil
}

func (c *busClient) RegisterService(name, svcName string, acceptor, originator bool) (byte, error) {
	var sap byte
	call := c.adapter(name).Call(adapterInterface+".RegisterService", 0, svcName, acceptor, originator)
	if call.Err != nil {
		return 0, fmt.Errorf("adapter %s RegisterService: %w", name, call.Err)
	}
	if err := call.Store(&sap); err != nil {
		return 0, fmt.Errorf("adapter %s RegisterService: %w", name, err)
	}
	return sap, nil
}

func (c *busClient) UnregisterService(name, svcName string) error {
	call := c.adapter(name).Call(adapterInterface+".UnregisterService", 0, svcName)
	if call.Err != nil {
		return fmt.Errorf("adapter %s UnregisterService: %w", name, call.Err)
	}
	return nil
}

// Services lists an adapter's currently registered peer services as
// parallel SAP/name slices.
func (c *busClient) Services(name string) ([]byte, []string, error) {
	var saps []byte
	var names []string
	call := c.adapter(name).Call(adapterInterface+".GetServices", 0)
	if call.Err != nil {
		return nil, nil, fmt.Errorf("adapter %s GetServices: %w", name, call.Err)
	}
	if err := call.Store(&saps, &names); err != nil {
		return nil, nil, fmt.Errorf("adapter %s GetServices: %w", name, err)
	}
	return saps, names, nil
}

// WatchSignals subscribes to every signal on both the daemon and adapter
// interfaces and returns the channel godbus delivers them on. Callers
// should narrow by *dbus.Signal.Name themselves.
func (c *busClient) WatchSignals() (chan *dbus.Signal, error) {
	if err := c.conn.AddMatchSignal(dbus.WithMatchInterface(daemonInterface)); err != nil {
		return nil, fmt.Errorf("match daemon signals: %w", err)
	}
	if err := c.conn.AddMatchSignal(dbus.WithMatchInterface(adapterInterface)); err != nil {
		return nil, fmt.Errorf("match adapter signals: %w", err)
	}

	ch := make(chan *dbus.Signal, 16)
	c.conn.Signal(ch)
	return ch, nil
}
