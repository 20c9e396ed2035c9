package param_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/nfcd/internal/param"
)

// fakeTarget is a minimal param.Target recording every Set call.
type fakeTarget struct {
	supported []param.ID
	sets      []setCall
	values    map[param.ID]param.Value
}

type setCall struct {
	values map[param.ID]param.Value
	reset  bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		supported: []param.ID{param.T4NDEF, param.LANFCID1},
		values:    make(map[param.ID]param.Value),
	}
}

func (f *fakeTarget) ListSupported() []param.ID { return f.supported }

func (f *fakeTarget) Get(id param.ID) (param.Value, bool) {
	v, ok := f.values[id]
	return v, ok
}

func (f *fakeTarget) Set(values map[param.ID]param.Value, reset bool) error {
	f.sets = append(f.sets, setCall{values: values, reset: reset})
	f.values = values
	return nil
}

// TestParamOverlayScenarioS6 reproduces the S6 end-to-end scenario: a
// request setting T4_NDEF=false, then a reset request setting LA_NFCID1,
// then releasing the second request restores the first's composition.
func TestParamOverlayScenarioS6(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	engine := param.NewEngine(target)

	tok1, err := engine.Submit(map[param.ID]param.Value{
		param.T4NDEF: {Bool: false},
	}, false)
	if err != nil {
		t.Fatalf("submit 1: %v", err)
	}

	tok2, err := engine.Submit(map[param.ID]param.Value{
		param.LANFCID1: {Bytes: []byte{0x11, 0x22}},
	}, true)
	if err != nil {
		t.Fatalf("submit 2: %v", err)
	}

	t4, ok := engine.Get(param.T4NDEF)
	if ok {
		t.Fatalf("T4_NDEF should have been cleared by request 2's reset, got %+v", t4)
	}

	nfcid1, ok := engine.Get(param.LANFCID1)
	if !ok || len(nfcid1.Bytes) != 2 || nfcid1.Bytes[0] != 0x11 || nfcid1.Bytes[1] != 0x22 {
		t.Fatalf("LA_NFCID1 = %+v, ok=%v", nfcid1, ok)
	}

	if err := engine.Release(tok2); err != nil {
		t.Fatalf("release 2: %v", err)
	}

	t4, ok = engine.Get(param.T4NDEF)
	if !ok || t4.Bool != false {
		t.Fatalf("after release, T4_NDEF = %+v, ok=%v", t4, ok)
	}
	if _, ok := engine.Get(param.LANFCID1); ok {
		t.Fatal("LA_NFCID1 should be back to driver default after release")
	}

	if err := engine.Release(tok1); err != nil {
		t.Fatalf("release 1: %v", err)
	}
}

func TestSubmitUnsupportedIDFails(t *testing.T) {
	t.Parallel()

	target := &fakeTarget{supported: []param.ID{param.T4NDEF}, values: make(map[param.ID]param.Value)}
	engine := param.NewEngine(target)

	if _, err := engine.Submit(map[param.ID]param.Value{param.LANFCID1: {}}, false); err == nil {
		t.Fatal("expected error for unsupported id")
	}
}

func TestNoSetCallWhenCompositionUnchanged(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	engine := param.NewEngine(target)

	tok, err := engine.Submit(map[param.ID]param.Value{param.T4NDEF: {Bool: true}}, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(target.sets) != 1 {
		t.Fatalf("sets = %d, want 1", len(target.sets))
	}

	// Submitting a request that changes no effective value must not signal a change.
	if _, err := engine.Submit(map[param.ID]param.Value{}, false); err != nil {
		t.Fatalf("submit empty: %v", err)
	}
	if len(target.sets) != 1 {
		t.Fatalf("sets after no-op submit = %d, want 1", len(target.sets))
	}

	_ = tok
}

func TestReleaseUnknownTokenFails(t *testing.T) {
	t.Parallel()

	engine := param.NewEngine(newFakeTarget())
	if err := engine.Release(999); err == nil {
		t.Fatal("expected error releasing unknown token")
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	engine := param.NewEngine(target)

	var got []param.Value
	unsub := engine.Subscribe(param.T4NDEF, func(_ param.ID, v param.Value) {
		got = append(got, v)
	})
	defer unsub()

	if _, err := engine.Submit(map[param.ID]param.Value{param.T4NDEF: {Bool: true}}, false); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(got) != 1 || !got[0].Bool {
		t.Fatalf("listener calls = %+v", got)
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want param.ID
	}{
		{"T4_NDEF", param.T4NDEF},
		{"LA_NFCID1", param.LANFCID1},
	}
	for _, tt := range tests {
		got, err := param.ParseID(tt.name)
		if err != nil {
			t.Fatalf("ParseID(%q): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ParseID(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if _, err := param.ParseID("bogus"); !errors.Is(err, param.ErrUnknownID) {
		t.Errorf("ParseID(bogus) error = %v, want ErrUnknownID", err)
	}
}
