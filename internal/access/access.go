package access

import "github.com/marianozunino/bucket/internal/model"

// Capability names understood by the delete check. They are opaque facts
// supplied by the caller; this package never consults a user store.
const (
	CapDeleteAny = "delete-any"
	CapDeleteOwn = "delete-own"
)

// CapabilitySet is the set of boolean permission facts held by an actor.
type CapabilitySet map[string]struct{}

// NewCapabilitySet builds a set from capability names.
func NewCapabilitySet(caps ...string) CapabilitySet {
	if len(caps) == 0 {
		return nil
	}
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the named capability.
func (s CapabilitySet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Actor identifies the requester and the capabilities it holds.
type Actor struct {
	ID   string
	Caps CapabilitySet
}

// Anonymous is the actor used for unauthenticated requests.
var Anonymous = Actor{ID: "anonymous"}

// CanDownload reports whether the actor may download the record. Downloads
// are open to any holder of a valid record reference; the check point is
// kept so future policy has a single place to land.
func CanDownload(actor Actor, rec model.FileRecord) bool {
	return true
}

// CanDelete reports whether the actor may delete the record: either a
// global delete-any capability, or delete-own combined with ownership.
func CanDelete(actor Actor, rec model.FileRecord) bool {
	if actor.Caps.Has(CapDeleteAny) {
		return true
	}
	return actor.Caps.Has(CapDeleteOwn) && actor.ID == rec.OwnerID
}
