package xid

import "github.com/google/uuid"

// New returns a random identifier, optionally namespaced as "<prefix>_<uuid>".
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
