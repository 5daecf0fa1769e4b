package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marianozunino/bucket/internal/model"
)

func TestCanDownloadAlwaysTrue(t *testing.T) {
	rec := model.FileRecord{ID: "f1", OwnerID: "alice"}

	assert.True(t, CanDownload(Anonymous, rec))
	assert.True(t, CanDownload(Actor{ID: "bob"}, rec))
	assert.True(t, CanDownload(Actor{ID: "alice", Caps: NewCapabilitySet(CapDeleteOwn)}, rec))
}

func TestCanDelete(t *testing.T) {
	rec := model.FileRecord{ID: "f1", OwnerID: "alice"}

	tests := []struct {
		name  string
		actor Actor
		want  bool
	}{
		{"no capabilities", Actor{ID: "alice"}, false},
		{"delete-own on own record", Actor{ID: "alice", Caps: NewCapabilitySet(CapDeleteOwn)}, true},
		{"delete-own on another owner's record", Actor{ID: "bob", Caps: NewCapabilitySet(CapDeleteOwn)}, false},
		{"delete-any on any record", Actor{ID: "bob", Caps: NewCapabilitySet(CapDeleteAny)}, true},
		{"anonymous", Anonymous, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanDelete(tc.actor, rec))
		})
	}
}

func TestCapabilitySet(t *testing.T) {
	assert.Nil(t, NewCapabilitySet())
	assert.False(t, CapabilitySet(nil).Has(CapDeleteAny))

	set := NewCapabilitySet(CapDeleteAny, CapDeleteOwn)
	assert.True(t, set.Has(CapDeleteAny))
	assert.True(t, set.Has(CapDeleteOwn))
	assert.False(t, set.Has("upload"))
}
