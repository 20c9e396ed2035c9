package adapter

// powerReconcile decides what, if anything, the engine must submit to the
// driver next, given the current request/actual/pending state. It is a
// pure function in the same spirit as a BFD-style FSM transition: state in,
// decision out, no side effects — the caller (Adapter.reconcilePower)
// executes whatever it returns.
//
// target is enabled && powerRequested (§4.3).
func powerReconcile(target, powered, pending, pendingTarget bool) (submit bool, cancelFirst bool, value bool) {
	if !pending {
		if powered == target {
			return false, false, false
		}
		return true, false, target
	}

	if pendingTarget == target {
		return false, false, false
	}

	return true, true, target
}

// reconcilePower recomputes the power target and submits/cancels a driver
// request as needed (§4.3 "Power").
func (a *Adapter) reconcilePower() {
	target := a.enabled && a.powerRequested

	submit, cancelFirst, value := powerReconcile(target, a.powered, a.powerPending, a.powerTarget)
	if !submit {
		return
	}

	if cancelFirst {
		a.driver.CancelPowerRequest()
	}

	// Mark the request pending before submitting, so a driver that
	// completes synchronously from inside the submit hook clears it.
	a.powerTarget = value
	a.powerPending = true
	if a.driver.SubmitPowerRequest(value) {
		return
	}

	// §4.3 "Fallible submissions": clear pending immediately, leave
	// powered unchanged; next input change retries.
	a.powerPending = false
}

// PowerNotify records a driver completion or spontaneous power
// notification (§6: power_notify(on, requested)).
func (a *Adapter) PowerNotify(on bool, requested bool) {
	if requested {
		a.powerPending = false
	}

	if on != a.powered {
		a.powered = on
		a.queueSignal(SignalPowered)
	}

	if !a.powered && a.modeRequested != 0 {
		// Powering off cancels any pending mode request (§4.3 "Mode").
		if a.modePending {
			a.driver.CancelModeRequest()
			a.modePending = false
		}
	}

	a.reconcileMode()
	a.emitPending()
}

// modeTarget computes the mode the engine should be driving toward: the
// client-requested mode masked by hardware support, or empty while
// unpowered (§4.3 "Mode").
func modeTarget(powered bool, requested, supported Mode) Mode {
	if !powered {
		return 0
	}
	return requested & supported
}

// reconcileMode mirrors reconcilePower's protocol for the mode bitmask
// (§4.3 "Mode mirrors the power protocol").
func (a *Adapter) reconcileMode() {
	target := modeTarget(a.powered, a.modeRequested, a.supportedModes)

	if !a.modePending {
		if a.mode == target {
			return
		}
		a.submitMode(target, false)
		return
	}

	if a.modeTarget == target {
		return
	}
	a.submitMode(target, true)
}

func (a *Adapter) submitMode(target Mode, cancelFirst bool) {
	if cancelFirst {
		a.driver.CancelModeRequest()
	}

	a.modeTarget = target
	a.modePending = true
	if a.driver.SubmitModeRequest(target) {
		return
	}

	a.modePending = false
}

// ModeNotify records a driver completion or spontaneous mode notification
// (§6: mode_notify(mode, requested)).
func (a *Adapter) ModeNotify(mode Mode, requested bool) {
	if requested {
		a.modePending = false
	}

	if mode != a.mode {
		a.mode = mode
		a.queueSignal(SignalMode)
	}

	a.reconcileMode()
	a.emitPending()
}

// SetEnabled toggles administrative enablement. Disabling first attempts
// to power down, per §4.3's "Enablement" rule.
func (a *Adapter) SetEnabled(enabled bool) {
	if enabled == a.enabled {
		return
	}

	a.enabled = enabled
	a.queueSignal(SignalEnabledChanged)

	a.reconcilePower()
	a.emitPending()
}

// RequestPower sets the client's power intent.
func (a *Adapter) RequestPower(requested bool) {
	if requested == a.powerRequested {
		return
	}

	a.powerRequested = requested
	a.queueSignal(SignalPowerRequested)

	a.reconcilePower()
	a.emitPending()
}

// RequestMode sets the client's requested mode bitmask. Unsupported bits
// are silently dropped during reconciliation, not here, so RequestedMode
// always reflects what the client asked for (§4.3).
func (a *Adapter) RequestMode(mode Mode) {
	if mode == a.modeRequested {
		return
	}

	a.modeRequested = mode
	a.queueSignal(SignalModeRequested)

	a.reconcileMode()
	a.emitPending()
}
