// Package peer implements the per-adapter peer-service registry: SAP
// allocation and naming for LLCP services attached to discovered peers
// (§4.5).
package peer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// SAP is a 6-bit LLCP Service Access Point identifier (1..=63).
type SAP uint8

// Reserved and range boundaries (§9 Open Question: the retrieved
// original_source pack did not include the header defining the numeric
// NFC_LLC_SAP_* boundaries, so this module fixes concrete values — see
// DESIGN.md "Open Question decisions").
const (
	// SAPLinkManagement is reserved for the LLC Link Management Service
	// and is never allocatable (nfc_peer_services.c: "sap_mask = 1").
	SAPLinkManagement SAP = 1

	// SAPSNEP is the canonical, fixed SAP for the well-known SNEP
	// default service name.
	SAPSNEP SAP = 4

	// NamedRangeMin/NamedRangeMax bound the allocation range for
	// non-reserved named services.
	NamedRangeMin SAP = 16
	NamedRangeMax SAP = 31

	// UnnamedRangeMin/UnnamedRangeMax bound the allocation range for
	// nameless services.
	UnnamedRangeMin SAP = 32
	UnnamedRangeMax SAP = 63
)

// WellKnownSNEPName is the reserved service name whose SAP is fixed at
// SAPSNEP rather than allocated from the named range.
const WellKnownSNEPName = "urn:nfc:sn:snep"

// Errors returned by Registry methods.
var (
	ErrDuplicateService = errors.New("peer: service already registered")
	ErrDuplicateName    = errors.New("peer: name already registered")
	ErrSAPExhausted     = errors.New("peer: sap range exhausted")
	ErrNotFound         = errors.New("peer: service not found")
)

// Service is one registered LLCP peer service (§3 "Peer service").
type Service struct {
	SAP  SAP
	Name string

	// Acceptor and Originator report whether this service can accept
	// inbound, and originate outbound, LLCP connections respectively.
	Acceptor   bool
	Originator bool
}

// ArrivalListener is notified of peer arrival/departure (§4.5 "Peer
// arrival/departure is fanned out to each registered service via
// peer_arrived/peer_left").
type ArrivalListener interface {
	PeerArrived(peerName string)
	PeerLeft(peerName string)
}

type entry struct {
	svc      Service
	listener ArrivalListener
}

// Registry holds the active peer services for one adapter, sorted by
// SAP, and fans out peer lifecycle events to each (§4.5).
type Registry struct {
	mu       sync.Mutex
	byName   map[string]*entry
	ordered  []*entry
	sapMask  uint64
}

// New creates an empty Registry. SAP 1 is reserved from construction
// (nfc_peer_services.c: "sap_mask = 1; Reserved for LLC Link Management
// Service").
func New() *Registry {
	return &Registry{
		byName:  make(map[string]*entry),
		sapMask: sapBit(SAPLinkManagement),
	}
}

func sapBit(s SAP) uint64 { return uint64(1) << uint(s) }

// Register adds a new service. name may be empty (a nameless service).
// Returns ErrDuplicateName if name is non-empty and already registered,
// or ErrSAPExhausted if no SAP is free in the applicable range.
//
// A non-empty name equal to WellKnownSNEPName is assigned the fixed
// SAPSNEP; any other collision against an already-used fixed SAP fails
// as a duplicate. Other named services allocate from the named range;
// nameless services allocate from the unnamed range (§4.5).
func (r *Registry) Register(name string, acceptor, originator bool, listener ArrivalListener) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name != "" {
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("peer: register %q: %w", name, ErrDuplicateName)
		}
	}

	sap, err := r.allocate(name)
	if err != nil {
		return nil, err
	}

	svc := Service{SAP: sap, Name: name, Acceptor: acceptor, Originator: originator}
	e := &entry{svc: svc, listener: listener}

	r.byName[name] = e
	r.ordered = append(r.ordered, e)
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].svc.SAP < r.ordered[j].svc.SAP })
	r.sapMask |= sapBit(sap)

	out := svc
	return &out, nil
}

// allocate picks the SAP for a newly registered service. Must be called
// with r.mu held.
func (r *Registry) allocate(name string) (SAP, error) {
	if name == WellKnownSNEPName {
		if r.sapMask&sapBit(SAPSNEP) != 0 {
			return 0, fmt.Errorf("peer: register %q: %w", name, ErrDuplicateName)
		}
		return SAPSNEP, nil
	}

	lo, hi := NamedRangeMin, NamedRangeMax
	if name == "" {
		lo, hi = UnnamedRangeMin, UnnamedRangeMax
	}

	for s := lo; s <= hi; s++ {
		if r.sapMask&sapBit(s) == 0 {
			return s, nil
		}
	}

	return 0, fmt.Errorf("peer: register %q: %w", name, ErrSAPExhausted)
}

// Unregister removes the named service, releasing its SAP.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("peer: unregister %q: %w", name, ErrNotFound)
	}

	delete(r.byName, name)
	for i, o := range r.ordered {
		if o == e {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	r.sapMask &^= sapBit(e.svc.SAP)

	return nil
}

// ByName looks up a registered service by name.
func (r *Registry) ByName(name string) (Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byName[name]
	if !ok {
		return Service{}, false
	}
	return e.svc, true
}

// BySAP looks up a registered service by SAP.
func (r *Registry) BySAP(sap SAP) (Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.ordered {
		if e.svc.SAP == sap {
			return e.svc, true
		}
	}
	return Service{}, false
}

// List returns every registered service, sorted by SAP (§8 property 7:
// "SAPs are pairwise distinct").
func (r *Registry) List() []Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Service, len(r.ordered))
	for i, e := range r.ordered {
		out[i] = e.svc
	}
	return out
}

// PeerArrived fans out arrival to every registered service's listener.
// A temporary copy of the service list is taken first so a listener
// that mutates the registry mid-callback cannot invalidate iteration
// (§4.5 "the registry takes a temporary copy of the service list").
func (r *Registry) PeerArrived(peerName string) {
	r.notify(peerName, true)
}

// PeerLeft fans out departure the same way PeerArrived fans out arrival.
func (r *Registry) PeerLeft(peerName string) {
	r.notify(peerName, false)
}

func (r *Registry) notify(peerName string, arrived bool) {
	r.mu.Lock()
	snapshot := make([]*entry, len(r.ordered))
	copy(snapshot, r.ordered)
	r.mu.Unlock()

	for _, e := range snapshot {
		if e.listener == nil {
			continue
		}
		if arrived {
			e.listener.PeerArrived(peerName)
		} else {
			e.listener.PeerLeft(peerName)
		}
	}
}
