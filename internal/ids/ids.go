// Package ids generates and canonicalizes the 128-bit identifiers used
// throughout the engine (task, user, event). Identifiers are opaque
// uuid.UUID values internally and lowercase hyphenated strings on the wire,
// per the canonical-string invariant in the wire format.
package ids

import "github.com/google/uuid"

// ID is a 128-bit identifier. The zero value is not a valid ID.
type ID = uuid.UUID

// New generates a fresh random identifier.
func New() ID {
	return uuid.New()
}

// Canonical renders an ID in its wire form: lowercase, hyphenated.
func Canonical(id ID) string {
	return id.String()
}

// Parse decodes a canonical wire string back into an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// Nil is the zero-value identifier, used to detect unset fields.
var Nil = uuid.Nil
