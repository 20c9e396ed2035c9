// Package param implements the refcounted parameter overlay described for
// adapter configuration: a small closed set of named, typed parameters,
// each adapter's declared support for them, and an ordered composition of
// client-owned override requests into one effective assignment.
package param

import (
	"errors"
	"fmt"
	"sync"
)

// ID identifies a parameter. The set is closed and mirrors the parameters
// the reference NFC core actually exposes: whether Type 4 tag emulation
// advertises an NDEF application, and the locally-administered NFCID1
// prefix used for card emulation.
type ID int

const (
	// T4NDEF is the boolean parameter controlling whether Type 4 tag
	// emulation advertises an NDEF application.
	T4NDEF ID = iota
	// LANFCID1 is the byte-sequence parameter carrying the
	// locally-administered NFCID1 prefix used for card emulation.
	LANFCID1
)

func (id ID) String() string {
	switch id {
	case T4NDEF:
		return "T4_NDEF"
	case LANFCID1:
		return "LA_NFCID1"
	default:
		return fmt.Sprintf("ID(%d)", int(id))
	}
}

// ParseID looks up an ID by its String() spelling, for RPC callers that
// name parameters rather than carry the typed constant.
func ParseID(name string) (ID, error) {
	switch name {
	case "T4_NDEF":
		return T4NDEF, nil
	case "LA_NFCID1":
		return LANFCID1, nil
	default:
		return 0, fmt.Errorf("param: %q: %w", name, ErrUnknownID)
	}
}

// IsBytes reports whether id's declared type is byte-sequence rather than
// bool, so wire-format callers (RPC, CLI) know which half of a tagged
// value to read or write (§3 "Parameter").
func (id ID) IsBytes() bool {
	return id == LANFCID1
}

// Value is a tagged parameter value. Exactly one of Bool or Bytes is
// meaningful, selected by the declared type of the owning ID: T4NDEF uses
// Bool, LANFCID1 uses Bytes. An empty, non-nil Bytes means "unset" (§6:
// "byte-sequence parameters accept empty arrays (meaning unset)").
type Value struct {
	Bool  bool
	Bytes []byte
}

// Errors returned by Engine methods.
var (
	// ErrUnknownID indicates a value was supplied for an ID the target
	// does not declare support for.
	ErrUnknownID = errors.New("param: unknown parameter id")

	// ErrUnknownToken indicates Release was called with a token that is
	// not currently registered.
	ErrUnknownToken = errors.New("param: unknown request token")
)

// Token identifies one registered parameter request for later release.
type Token uint64

// Target is the driver-facing side of the parameter store (§4.2,
// §6 "driver exposes... set_params, list_supported_params, get_param").
type Target interface {
	ListSupported() []ID
	Get(id ID) (Value, bool)
	Set(values map[ID]Value, reset bool) error
}

// ChangeFunc is invoked when the effective value of a parameter changes.
type ChangeFunc func(id ID, value Value)

type request struct {
	token  Token
	values map[ID]Value
	reset  bool
}

// Engine composes outstanding parameter requests, in registration order,
// into a single effective assignment and pushes it to Target whenever the
// composition changes (§4.2, §3 "Parameter request").
type Engine struct {
	mu        sync.Mutex
	target    Target
	requests  []*request
	nextToken Token
	effective map[ID]Value
	listeners map[ID][]ChangeFunc
	wildcard  []ChangeFunc
}

// NewEngine creates an Engine driving target. The effective assignment
// starts empty (all parameters at driver default).
func NewEngine(target Target) *Engine {
	return &Engine{
		target:    target,
		effective: make(map[ID]Value),
		listeners: make(map[ID][]ChangeFunc),
	}
}

// Subscribe registers fn to be called whenever the effective value of id
// changes. It returns an unsubscribe function.
func (e *Engine) Subscribe(id ID, fn ChangeFunc) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners[id] = append(e.listeners[id], fn)
	idx := len(e.listeners[id]) - 1

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.listeners[id][idx] = nil
	}
}

// SubscribeAll registers fn to be called on every parameter change,
// regardless of id.
func (e *Engine) SubscribeAll(fn ChangeFunc) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wildcard = append(e.wildcard, fn)
	idx := len(e.wildcard) - 1

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.wildcard[idx] = nil
	}
}

// Submit registers a new parameter request. A request with reset=true
// clears all previously composed values before the new request's own
// values are layered on top (§3: "a request with reset clears all pending
// values; subsequent requests overwrite by id"). If the new composition
// cannot be applied (for example, it names an id the target does not
// support), Submit returns an error and a zero token and the request is
// not registered.
func (e *Engine) Submit(values map[ID]Value, reset bool) (Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextToken++
	tok := e.nextToken

	req := &request{token: tok, values: cloneValues(values), reset: reset}
	e.requests = append(e.requests, req)

	if err := e.recompute(); err != nil {
		e.requests = e.requests[:len(e.requests)-1]
		return 0, fmt.Errorf("param: submit: %w", err)
	}

	return tok, nil
}

// Release removes a previously submitted request, re-applying the
// remainder in registration order (§3: "Releasing a token re-applies the
// remainder").
func (e *Engine) Release(tok Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, r := range e.requests {
		if r.token == tok {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("param: release %d: %w", tok, ErrUnknownToken)
	}

	e.requests = append(e.requests[:idx], e.requests[idx+1:]...)

	return e.recompute()
}

// Get returns the current effective value for id, if the target supports
// it and it has an override; ok is false when the parameter is at driver
// default (callers should then consult Target.Get directly).
func (e *Engine) Get(id ID) (Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.effective[id]
	return v, ok
}

// recompute folds all outstanding requests into one effective map, in
// registration order, and pushes it to the target only when it changed
// (§4.2: "A change is signalled to listeners only when at least one
// effective value differs from the previous composition"). Must be
// called with e.mu held.
func (e *Engine) recompute() error {
	next := make(map[ID]Value)
	for _, r := range e.requests {
		if r.reset {
			next = make(map[ID]Value)
		}
		for id, v := range r.values {
			next[id] = v
		}
	}

	supported := make(map[ID]bool)
	for _, id := range e.target.ListSupported() {
		supported[id] = true
	}
	for id := range next {
		if !supported[id] {
			return fmt.Errorf("param: id %s: %w", id, ErrUnknownID)
		}
	}

	changed := diff(e.effective, next)
	if len(changed) == 0 {
		return nil
	}

	// The full effective map always fully replaces what the target last
	// saw, so reset is unconditionally true: params dropped from next
	// (released without replacement) must return to driver default.
	if err := e.target.Set(next, true); err != nil {
		return fmt.Errorf("param: set target: %w", err)
	}

	e.effective = next
	e.notify(changed)

	return nil
}

func (e *Engine) notify(changed []ID) {
	for _, id := range changed {
		v := e.effective[id]
		for _, fn := range e.listeners[id] {
			if fn != nil {
				fn(id, v)
			}
		}
		for _, fn := range e.wildcard {
			if fn != nil {
				fn(id, v)
			}
		}
	}
}

func diff(prev, next map[ID]Value) []ID {
	var changed []ID

	seen := make(map[ID]bool, len(next))
	for id, v := range next {
		seen[id] = true
		if pv, ok := prev[id]; !ok || !sameValue(pv, v) {
			changed = append(changed, id)
		}
	}
	for id := range prev {
		if !seen[id] {
			changed = append(changed, id)
		}
	}

	return changed
}

func sameValue(a, b Value) bool {
	if a.Bool != b.Bool {
		return false
	}
	if len(a.Bytes) != len(b.Bytes) {
		return false
	}
	for i := range a.Bytes {
		if a.Bytes[i] != b.Bytes[i] {
			return false
		}
	}
	return true
}

func cloneValues(values map[ID]Value) map[ID]Value {
	out := make(map[ID]Value, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
