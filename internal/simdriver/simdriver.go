// Package simdriver implements a software-only adapter.Driver that
// completes every power/mode/parameter request synchronously and
// successfully. It stands in for the concrete radio backends the core
// spec treats as out-of-scope collaborators (§1, §6), the same role
// unit/common/test_adapter.c's TestAdapter plays for the reference
// daemon's own test suite: something nfcd can register as a real
// adapter.Driver without any hardware attached, for standalone
// operation and smoke testing.
package simdriver

import (
	"github.com/dantte-lp/nfcd/internal/adapter"
	"github.com/dantte-lp/nfcd/internal/param"
)

// Driver is a deterministic, synchronously-completing adapter.Driver.
// Every submit hook reports success immediately by calling back into the
// owning Adapter before returning, rather than posting a completion
// asynchronously — still legal per §5 ("callback may synchronously invoke
// an API that mutates the same component").
type Driver struct {
	techs adapter.Tech
	modes adapter.Mode

	params map[param.ID]param.Value

	adapter *adapter.Adapter
}

// New creates a Driver supporting techs and modes. Attach binds it to the
// Adapter it backs so its submit hooks can call back synchronously.
func New(techs adapter.Tech, modes adapter.Mode) *Driver {
	return &Driver{
		techs: techs,
		modes: modes,
		params: map[param.ID]param.Value{
			param.T4NDEF:   {Bool: true},
			param.LANFCID1: {Bytes: []byte{}},
		},
	}
}

// Attach records the Adapter this driver backs, so completions can be
// delivered via its Notify methods. Must be called once, before the
// adapter issues its first request.
func (d *Driver) Attach(a *adapter.Adapter) {
	d.adapter = a
}

func (d *Driver) SupportedTechs() adapter.Tech { return d.techs }
func (d *Driver) SupportedModes() adapter.Mode { return d.modes }

func (d *Driver) SubmitPowerRequest(on bool) bool {
	d.adapter.PowerNotify(on, true)
	return true
}

func (d *Driver) CancelPowerRequest() {}

func (d *Driver) SubmitModeRequest(mode adapter.Mode) bool {
	d.adapter.ModeNotify(mode, true)
	return true
}

func (d *Driver) CancelModeRequest() {}

// ListSupported reports the parameter ids this driver declares (§4.2).
func (d *Driver) ListSupported() []param.ID {
	return []param.ID{param.T4NDEF, param.LANFCID1}
}

// Get returns the driver's current value for id.
func (d *Driver) Get(id param.ID) (param.Value, bool) {
	v, ok := d.params[id]
	return v, ok
}

// Set applies values to the driver's backing store. A full reset restores
// every parameter to its construction-time default rather than clearing
// it, matching the "driver default" resolution for cleared parameters
// (§9 Open Question).
func (d *Driver) Set(values map[param.ID]param.Value, reset bool) error {
	if reset {
		d.params = map[param.ID]param.Value{
			param.T4NDEF:   {Bool: true},
			param.LANFCID1: {Bytes: []byte{}},
		}
	}
	for id, v := range values {
		d.params[id] = v
	}
	return nil
}
