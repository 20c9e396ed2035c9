package host

import (
	"fmt"

	"github.com/dantte-lp/nfcd/internal/apdu"
)

const (
	swFileNotFound      = 0x6A82
	swSuccess           = 0x9000
	swClassNotSupported = 0x6E00
	swWrongLength       = 0x6A00

	selectCLA = 0x00
	selectINS = 0xA4
	selectP1  = 0x04

	minAIDLen = 5
	maxAIDLen = 16
)

// HandleAPDU enqueues one inbound APDU. Per §4.4/§5, APDUs are processed
// strictly in arrival order and the next one does not begin routing
// until respond's Response has been confirmed sent.
func (h *Host) HandleAPDU(data []byte, respond func(Response)) {
	if h.state == StateTerminal {
		return
	}

	h.queue = append(h.queue, apduRequest{data: append([]byte(nil), data...), respond: respond})
	h.pump()
}

func (h *Host) pump() {
	if h.busy || len(h.queue) == 0 {
		return
	}
	if h.state != StateReady && h.state != StateSelecting {
		return
	}

	req := h.queue[0]
	h.queue = h.queue[1:]
	h.busy = true

	h.route(req)
}

// complete wraps resp.Sent so the host learns when the wire has
// confirmed delivery, then hands the response to the caller. This is the
// one place a routed APDU's final status word is known, so it is also
// where the routing outcome is reported to listeners (e.g. metrics, §7).
func (h *Host) complete(req apduRequest, resp Response) {
	h.emit(EventAPDURouted, fmt.Sprintf("%04X", resp.SW))

	inner := resp.Sent
	resp.Sent = func(err error) {
		if inner != nil {
			inner(err)
		}
		h.busy = false
		h.pump()
	}
	req.respond(resp)
}

func (h *Host) route(req apduRequest) {
	cmd, _, err := apdu.Decode(req.data)
	if err != nil {
		h.complete(req, Response{SW: swWrongLength})
		return
	}

	if isSelectByName(cmd) {
		h.routeSelect(req, cmd)
		return
	}

	h.routeProcess(req)
}

func isSelectByName(cmd apdu.Command) bool {
	return cmd.CLA == selectCLA && cmd.INS == selectINS && cmd.P1 == selectP1 &&
		len(cmd.Data) >= minAIDLen && len(cmd.Data) <= maxAIDLen
}

func (h *Host) findAppByAID(aid []byte) *appSlot {
	for _, slot := range h.apps {
		if slot.failed {
			continue
		}
		if bytesEqual(slot.app.AID(), aid) {
			return slot
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// routeSelect implements SELECT-by-name (§4.4 "APDU routing").
func (h *Host) routeSelect(req apduRequest, cmd apdu.Command) {
	slot := h.findAppByAID(cmd.Data)
	if slot == nil {
		h.routeThroughServices(req)
		return
	}

	h.state = StateSelecting

	if h.current != nil {
		h.current.app.Deselect(h)
		h.current = nil
	}

	slot.pendingSelect = slot.app.Select(h, func(outcome SelectOutcome) {
		h.onSelectResult(req, slot, outcome)
	})
}

func (h *Host) onSelectResult(req apduRequest, slot *appSlot, outcome SelectOutcome) {
	slot.pendingSelect = OpSync
	h.state = StateReady

	switch outcome {
	case SelectOK:
		h.current = slot
		h.emit(EventAppChanged, string(slot.app.AID()))
		h.complete(req, Response{SW: swSuccess})
	case SelectNotHandled:
		h.routeThroughServices(req)
	default: // SelectFailed
		h.complete(req, Response{SW: swFileNotFound})
	}
}

// routeProcess dispatches a non-SELECT APDU to the current application,
// falling through to services when there is none or it declines.
func (h *Host) routeProcess(req apduRequest) {
	if h.current == nil {
		h.routeThroughServices(req)
		return
	}

	slot := h.current
	slot.pendingProcess = slot.app.Process(h, req.data, func(resp *Response, outcome ProcessOutcome) {
		h.onAppProcessResult(req, slot, resp, outcome)
	})
}

func (h *Host) onAppProcessResult(req apduRequest, slot *appSlot, resp *Response, outcome ProcessOutcome) {
	slot.pendingProcess = OpSync

	if outcome == Handled {
		h.complete(req, responseOrEmpty(resp))
		return
	}

	// NotHandled and ProcessFailed are observationally identical: fall
	// through to services (§9 open question on dual failure signaling).
	h.routeThroughServices(req)
}

func (h *Host) routeThroughServices(req apduRequest) {
	h.tryService(req, 0)
}

func (h *Host) tryService(req apduRequest, from int) {
	for idx := from; idx < len(h.services); idx++ {
		slot := h.services[idx]
		if slot.failed {
			continue
		}

		slot.pendingProcess = slot.svc.Process(h, req.data, func(resp *Response, outcome ProcessOutcome) {
			h.onServiceProcessResult(req, slot, idx, resp, outcome)
		})
		return
	}

	// No claimant (§4.4): a SELECT by name whose AID nobody took answers
	// file not found; any other decodable APDU answers class not supported.
	sw := uint16(swClassNotSupported)
	if cmd, _, err := apdu.Decode(req.data); err == nil && isSelectByName(cmd) {
		sw = swFileNotFound
	}
	h.complete(req, Response{SW: sw})
}

func (h *Host) onServiceProcessResult(req apduRequest, slot *serviceSlot, idx int, resp *Response, outcome ProcessOutcome) {
	slot.pendingProcess = OpSync

	if outcome == Handled {
		h.complete(req, responseOrEmpty(resp))
		return
	}

	h.tryService(req, idx+1)
}

func responseOrEmpty(resp *Response) Response {
	if resp == nil {
		return Response{}
	}
	return *resp
}
