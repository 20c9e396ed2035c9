// Package integration exercises the host card-emulation engine end to
// end, against the seed scenarios used to validate the routing state
// machine: select-ok, select-unknown, implicit select, fall-through, and
// initiator-gone. Parameter-overlay composition is covered in
// internal/param.
package integration

import (
	"testing"

	"github.com/dantte-lp/nfcd/internal/apdu"
	"github.com/dantte-lp/nfcd/internal/host"
)

// fakeApp is a synchronously-completing host.Application used to drive
// the routing engine without any real card-emulation hardware.
type fakeApp struct {
	aid         []byte
	flags       host.AppFlags
	selectOK    bool
	implicitOK  bool
	processSW   uint16
	processData []byte
	handles     bool

	selected    bool
	deselected  int
	cancelled   []host.OpID
}

func (a *fakeApp) AID() []byte          { return a.aid }
func (a *fakeApp) Flags() host.AppFlags { return a.flags }

func (a *fakeApp) Start(_ *host.Host, cb func(ok bool)) host.OpID {
	cb(true)
	return host.OpSync
}

func (a *fakeApp) Cancel(id host.OpID) { a.cancelled = append(a.cancelled, id) }

func (a *fakeApp) ImplicitSelect(_ *host.Host, cb func(ok bool)) host.OpID {
	if a.implicitOK {
		a.selected = true
	}
	cb(a.implicitOK)
	return host.OpSync
}

func (a *fakeApp) Select(_ *host.Host, cb func(outcome host.SelectOutcome)) host.OpID {
	if a.selectOK {
		a.selected = true
		cb(host.SelectOK)
	} else {
		cb(host.SelectFailed)
	}
	return host.OpSync
}

func (a *fakeApp) Deselect(_ *host.Host) {
	a.selected = false
	a.deselected++
}

func (a *fakeApp) Process(_ *host.Host, _ []byte, cb func(resp *host.Response, outcome host.ProcessOutcome)) host.OpID {
	if !a.handles {
		cb(nil, host.NotHandled)
		return host.OpSync
	}
	cb(&host.Response{SW: a.processSW, Data: a.processData}, host.Handled)
	return host.OpSync
}

// fakeService is a synchronously-completing host.Service.
type fakeService struct {
	handles     bool
	processSW   uint16
	processData []byte
}

func (s *fakeService) Start(_ *host.Host, cb func(ok bool)) host.OpID {
	cb(true)
	return host.OpSync
}

func (s *fakeService) Cancel(host.OpID) {}

func (s *fakeService) Process(_ *host.Host, _ []byte, cb func(resp *host.Response, outcome host.ProcessOutcome)) host.OpID {
	if !s.handles {
		cb(nil, host.NotHandled)
		return host.OpSync
	}
	cb(&host.Response{SW: s.processSW, Data: s.processData}, host.Handled)
	return host.OpSync
}

// asyncService defers Start completion until its callback is invoked
// explicitly, so tests can observe real interleaving between the service
// and application start phases instead of synchronous completion masking
// ordering bugs.
type asyncService struct {
	startCB func(ok bool)
}

func (s *asyncService) Start(_ *host.Host, cb func(ok bool)) host.OpID {
	s.startCB = cb
	return host.NewOpID()
}

func (s *asyncService) Cancel(host.OpID) {}

func (s *asyncService) Process(_ *host.Host, _ []byte, cb func(resp *host.Response, outcome host.ProcessOutcome)) host.OpID {
	cb(nil, host.NotHandled)
	return host.OpSync
}

// asyncApp records whether Start has been invoked, so tests can assert it
// has NOT been called while a service start is still outstanding.
type asyncApp struct {
	aid     []byte
	started bool
}

func (a *asyncApp) AID() []byte          { return a.aid }
func (a *asyncApp) Flags() host.AppFlags { return 0 }

func (a *asyncApp) Start(_ *host.Host, cb func(ok bool)) host.OpID {
	a.started = true
	cb(true)
	return host.OpSync
}

func (a *asyncApp) Cancel(host.OpID) {}

func (a *asyncApp) ImplicitSelect(_ *host.Host, cb func(ok bool)) host.OpID {
	cb(false)
	return host.OpSync
}

func (a *asyncApp) Select(_ *host.Host, cb func(outcome host.SelectOutcome)) host.OpID {
	cb(host.SelectOK)
	return host.OpSync
}

func (a *asyncApp) Deselect(_ *host.Host) {}

func (a *asyncApp) Process(_ *host.Host, _ []byte, cb func(resp *host.Response, outcome host.ProcessOutcome)) host.OpID {
	cb(nil, host.NotHandled)
	return host.OpSync
}

func selectAPDU(t *testing.T, aid []byte) []byte {
	t.Helper()
	buf, err := apdu.Encode(apdu.Command{CLA: 0x00, INS: 0xA4, P1: 0x04, Data: aid})
	if err != nil {
		t.Fatalf("encode select: %v", err)
	}
	return buf
}

// TestScenarioS1SelectOK selects a known application and expects SW=9000.
func TestScenarioS1SelectOK(t *testing.T) {
	t.Parallel()

	app := &fakeApp{aid: []byte{0xA0, 0x00, 0x00, 0x01, 0x01}, selectOK: true}
	h := host.New(nil, []host.Application{app}, nil)
	h.Start()

	var got host.Response
	h.HandleAPDU(selectAPDU(t, app.aid), func(r host.Response) {
		got = r
		if r.Sent != nil {
			r.Sent(nil)
		}
	})

	if got.SW != 0x9000 {
		t.Fatalf("expected SW=9000, got %#04x", got.SW)
	}
	if string(h.CurrentAID()) != string(app.aid) {
		t.Fatalf("expected app selected as current")
	}
}

// TestAPDURoutedEventReportsStatusWord verifies every completed APDU
// emits EventAPDURouted with its final status word, hex-encoded (§7).
func TestAPDURoutedEventReportsStatusWord(t *testing.T) {
	t.Parallel()

	app := &fakeApp{aid: []byte{0xA0, 0x00, 0x00, 0x01, 0x06}, selectOK: true}
	h := host.New(nil, []host.Application{app}, nil)
	h.Start()

	var routed []string
	h.Subscribe(func(event host.Event, detail string) {
		if event == host.EventAPDURouted {
			routed = append(routed, detail)
		}
	})

	h.HandleAPDU(selectAPDU(t, app.aid), func(r host.Response) {
		if r.Sent != nil {
			r.Sent(nil)
		}
	})

	if len(routed) != 1 || routed[0] != "9000" {
		t.Fatalf("expected one EventAPDURouted(9000), got %v", routed)
	}
}

// TestScenarioS2SelectUnknown selects an AID with no matching app or
// service and expects SW=6A82 (file not found — no claimant).
func TestScenarioS2SelectUnknown(t *testing.T) {
	t.Parallel()

	known := &fakeApp{aid: []byte{0xA0, 0x00, 0x00, 0x01, 0x01}, selectOK: true}
	h := host.New(nil, []host.Application{known}, nil)
	h.Start()

	var got host.Response
	h.HandleAPDU(selectAPDU(t, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}), func(r host.Response) {
		got = r
		if r.Sent != nil {
			r.Sent(nil)
		}
	})

	if got.SW != 0x6A82 {
		t.Fatalf("expected SW=6A82 for unmatched AID, got %#04x", got.SW)
	}
	if h.CurrentAID() != nil {
		t.Fatalf("expected no current application")
	}
}

// TestScenarioS3ImplicitSelect verifies an AllowImplicitSelection app
// becomes current during the start sequence without any SELECT APDU.
func TestScenarioS3ImplicitSelect(t *testing.T) {
	t.Parallel()

	app := &fakeApp{
		aid:        []byte{0xA0, 0x00, 0x00, 0x01, 0x02},
		flags:      host.AllowImplicitSelection,
		implicitOK: true,
	}
	h := host.New(nil, []host.Application{app}, nil)
	h.Start()

	if h.State() != host.StateReady {
		t.Fatalf("expected state ready after implicit select, got %s", h.State())
	}
	if string(h.CurrentAID()) != string(app.aid) {
		t.Fatalf("expected implicitly selected app to be current")
	}
}

// TestScenarioS4FallThrough verifies a non-SELECT APDU that the current
// application declines falls through to a service that accepts it.
func TestScenarioS4FallThrough(t *testing.T) {
	t.Parallel()

	app := &fakeApp{aid: []byte{0xA0, 0x00, 0x00, 0x01, 0x03}, selectOK: true, handles: false}
	svc := &fakeService{handles: true, processSW: 0x9000, processData: []byte{0xCA, 0xFE}}

	h := host.New([]host.Service{svc}, []host.Application{app}, nil)
	h.Start()

	h.HandleAPDU(selectAPDU(t, app.aid), func(r host.Response) {
		if r.Sent != nil {
			r.Sent(nil)
		}
	})

	var got host.Response
	h.HandleAPDU([]byte{0x00, 0xB0, 0x00, 0x00}, func(r host.Response) {
		got = r
		if r.Sent != nil {
			r.Sent(nil)
		}
	})

	if got.SW != 0x9000 {
		t.Fatalf("expected fall-through service to answer with SW=9000, got %#04x", got.SW)
	}
	if string(got.Data) != string([]byte{0xCA, 0xFE}) {
		t.Fatalf("expected fall-through service response data, got %x", got.Data)
	}
}

// TestStartSequencePhasesServicesBeforeApps verifies that no application's
// Start runs until every service's Start has reported, even when a
// service completes asynchronously (§4.4 "Start sequence").
func TestStartSequencePhasesServicesBeforeApps(t *testing.T) {
	t.Parallel()

	svc := &asyncService{}
	app := &asyncApp{aid: []byte{0xA0, 0x00, 0x00, 0x01, 0x05}}

	h := host.New([]host.Service{svc}, []host.Application{app}, nil)
	h.Start()

	if app.started {
		t.Fatalf("expected application start to wait for outstanding service start")
	}
	if svc.startCB == nil {
		t.Fatalf("expected service start to be outstanding")
	}

	svc.startCB(true)

	if !app.started {
		t.Fatalf("expected application start to run once the service start completes")
	}
	if h.State() != host.StateReady {
		t.Fatalf("expected state ready once both phases complete, got %s", h.State())
	}
}

// TestScenarioS5InitiatorGone verifies InitiatorGone deselects the
// current application, transitions to terminal, and stops accepting
// further APDUs.
func TestScenarioS5InitiatorGone(t *testing.T) {
	t.Parallel()

	app := &fakeApp{aid: []byte{0xA0, 0x00, 0x00, 0x01, 0x04}, selectOK: true}
	h := host.New(nil, []host.Application{app}, nil)
	h.Start()

	h.HandleAPDU(selectAPDU(t, app.aid), func(r host.Response) {
		if r.Sent != nil {
			r.Sent(nil)
		}
	})
	if !app.selected {
		t.Fatalf("expected app selected before InitiatorGone")
	}

	var goneEvents int
	h.Subscribe(func(event host.Event, _ string) {
		if event == host.EventGone {
			goneEvents++
		}
	})

	h.InitiatorGone()

	if h.State() != host.StateTerminal {
		t.Fatalf("expected terminal state, got %s", h.State())
	}
	if app.deselected == 0 {
		t.Fatalf("expected current application to be deselected")
	}
	if goneEvents != 1 {
		t.Fatalf("expected exactly one gone notification, got %d", goneEvents)
	}

	called := false
	h.HandleAPDU(selectAPDU(t, app.aid), func(host.Response) { called = true })
	if called {
		t.Fatalf("expected terminal session to ignore further APDUs")
	}
}
