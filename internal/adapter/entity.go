package adapter

import "fmt"

// collectionFor returns the map and the index counter for kind, along
// with the name format string (§3: "tag<n>", "peer<n>", "host<n>").
func (a *Adapter) collectionFor(kind EntityKind) (map[string]*Entity, *int, string) {
	switch kind {
	case EntityTag:
		return a.tags, &a.nextTagIndex, "tag%d"
	case EntityPeer:
		return a.peers, &a.nextPeerIndex, "peer%d"
	default:
		return a.hosts, &a.nextHostIndex, "host%d"
	}
}

// nextName assigns a per-adapter monotonic name, skipping collisions
// (§3: "collisions are resolved by incrementing until the name is free").
func (a *Adapter) nextName(kind EntityKind) string {
	coll, idx, format := a.collectionFor(kind)
	for {
		name := fmt.Sprintf(format, *idx)
		*idx++
		if _, exists := coll[name]; !exists {
			return name
		}
	}
}

// AddEntity registers a new tag/peer/host, assigning it a unique name. If
// present is false at add time, the entity is dropped silently (§4.3:
// "Addition of a non-present tag... drops the object silently") and the
// empty string is returned.
func (a *Adapter) AddEntity(kind EntityKind, present bool) string {
	if !present {
		return ""
	}

	name := a.nextName(kind)
	coll, _, _ := a.collectionFor(kind)
	coll[name] = &Entity{Name: name, Kind: kind, Present: present}

	a.recomputeTargetPresence()
	a.emit(signalForAdd(kind), name)
	a.emitPending()

	if kind == EntityPeer {
		a.Services.PeerArrived(name)
	}

	return name
}

// EntityGone marks the named entity gone, removing it from its
// collection and recomputing presence (§3: "When an entity signals gone,
// the adapter removes it from the corresponding map and emits a removal
// notification").
func (a *Adapter) EntityGone(kind EntityKind, name string) error {
	return a.removeEntity(kind, name)
}

// RemoveByName explicitly removes a tracked entity (§4.3: "Removal is
// driven by gone events or explicit remove_by_name").
func (a *Adapter) RemoveByName(kind EntityKind, name string) error {
	return a.removeEntity(kind, name)
}

func (a *Adapter) removeEntity(kind EntityKind, name string) error {
	coll, _, _ := a.collectionFor(kind)
	if _, exists := coll[name]; !exists {
		return fmt.Errorf("adapter: remove %s %q: %w", kind, name, ErrEntityNotFound)
	}

	delete(coll, name)

	a.recomputeTargetPresence()
	a.emit(signalForRemove(kind), name)
	a.emitPending()

	if kind == EntityPeer {
		a.Services.PeerLeft(name)
	}

	return nil
}

// Tag, Peer, and Host look up a tracked entity by name.
func (a *Adapter) Tag(name string) (*Entity, bool) { e, ok := a.tags[name]; return e, ok }

func (a *Adapter) Peer(name string) (*Entity, bool) { e, ok := a.peers[name]; return e, ok }

func (a *Adapter) Host(name string) (*Entity, bool) { e, ok := a.hosts[name]; return e, ok }

// Entity add/remove signals are not part of the batched bitmask (see
// Adapter.emitPending); they are delivered synchronously with their own
// detail, identified here by a distinct Signal value per kind so
// listeners can distinguish add/remove for tags, peers, and hosts.
const (
	SignalTagAdded Signal = 1 << (iota + 16)
	SignalTagRemoved
	SignalPeerAdded
	SignalPeerRemoved
	SignalHostAdded
	SignalHostRemoved
)

func signalForAdd(kind EntityKind) Signal {
	switch kind {
	case EntityTag:
		return SignalTagAdded
	case EntityPeer:
		return SignalPeerAdded
	default:
		return SignalHostAdded
	}
}

func signalForRemove(kind EntityKind) Signal {
	switch kind {
	case EntityTag:
		return SignalTagRemoved
	case EntityPeer:
		return SignalPeerRemoved
	default:
		return SignalHostRemoved
	}
}
