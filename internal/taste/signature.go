// Package taste derives music-taste signatures from listening data and
// scores the similarity between two users' tastes. All scoring functions
// are pure and bounded: missing or empty inputs degrade to empty
// signatures and zero scores, never errors.
package taste

import "strings"

// Play is a single listening observation: the genre and artist of a song
// a user played past the engagement threshold.
type Play struct {
	Genre  string
	Artist string
}

// Signature is a user's implicit taste profile, folded from listening
// history. It is ephemeral: recomputed (or pulled from cache) per match
// request, never persisted as a row.
type Signature struct {
	Genres  map[string]bool
	Artists map[string]bool
}

// NewSignature returns an empty signature with allocated sets.
func NewSignature() Signature {
	return Signature{
		Genres:  make(map[string]bool),
		Artists: make(map[string]bool),
	}
}

// IsEmpty reports whether the signature carries no taste information.
func (s Signature) IsEmpty() bool {
	return len(s.Genres) == 0 && len(s.Artists) == 0
}

// ExtractImplicit folds listening plays into a taste signature. Genre and
// artist strings are lower-cased before insertion; the rest of the
// matching pipeline relies on this normalization, so callers must not
// build signatures any other way. Empty input yields empty sets.
func ExtractImplicit(plays []Play) Signature {
	sig := NewSignature()
	for _, p := range plays {
		if g := normalize(p.Genre); g != "" {
			sig.Genres[g] = true
		}
		if a := normalize(p.Artist); a != "" {
			sig.Artists[a] = true
		}
	}
	return sig
}

// normalize lower-cases and trims a genre or artist label.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
