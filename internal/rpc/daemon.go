package rpc

import (
	"github.com/godbus/dbus/v5"

	"github.com/dantte-lp/nfcd/internal/adapter"
	"github.com/dantte-lp/nfcd/internal/dispatch"
	"github.com/dantte-lp/nfcd/internal/manager"
)

// daemonObject implements org.sailfishos.nfc.Daemon at "/".
type daemonObject struct {
	mgr  *manager.Manager
	loop *dispatch.Loop
}

// onLoop runs fn on the daemon's dispatch loop, serializing it against
// every adapter-touching call the way adapterObject.onLoop does (§5):
// Manager.RequestMode/ReleaseModeToken push straight into every adapter
// under the manager's own mutex, a different lock domain from the one
// per-adapter D-Bus calls already post onto. Tests that construct a
// daemonObject directly (loop == nil) run fn in place.
func (d *daemonObject) onLoop(fn func()) {
	if d.loop == nil {
		fn()
		return
	}
	d.loop.Do(fn)
}

// GetAll returns the daemon's interface version and adapter object paths,
// mirroring the reference daemon's combined getter.
func (d *daemonObject) GetAll() (uint32, []dbus.ObjectPath, *dbus.Error) {
	return 1, d.adapterPaths(), nil
}

// GetInterfaceVersion reports the Daemon interface version this build
// implements.
func (d *daemonObject) GetInterfaceVersion() (uint32, *dbus.Error) {
	return 1, nil
}

// GetAdapters returns the object path of every registered adapter.
func (d *daemonObject) GetAdapters() ([]dbus.ObjectPath, *dbus.Error) {
	return d.adapterPaths(), nil
}

func (d *daemonObject) adapterPaths() []dbus.ObjectPath {
	adapters := d.mgr.Adapters()
	paths := make([]dbus.ObjectPath, len(adapters))
	for i, a := range adapters {
		paths[i] = adapterPath(a.Name)
	}
	return paths
}

// RequestMode contributes an enable/disable mode token to the manager's
// cross-adapter mode stack (§4.6, §6 "request_mode(enable, disable) ->
// token"), distinct from the per-adapter RequestMode exposed by
// adapterObject (§4.3). It always succeeds; unsupported bits are dropped
// per adapter during that adapter's own reconciliation, not here.
func (d *daemonObject) RequestMode(enable, disable uint32) (token uint64, next uint32, _ *dbus.Error) {
	d.onLoop(func() {
		token = uint64(d.mgr.RequestMode(adapter.Mode(enable), adapter.Mode(disable)))
		next = uint32(d.mgr.EffectiveMode())
	})
	return token, next, nil
}

// ReleaseModeToken releases a previously issued manager-level mode token
// (§6 "release_mode_token").
func (d *daemonObject) ReleaseModeToken(token uint64) (err *dbus.Error) {
	d.onLoop(func() {
		if releaseErr := d.mgr.ReleaseModeToken(manager.ModeToken(token)); releaseErr != nil {
			err = mapError(releaseErr, "release mode token")
		}
	})
	return err
}
