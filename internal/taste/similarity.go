package taste

import (
	"math"
	"sort"
)

// Implicit composite weights. Genres dominate because they are coarser
// and far less sparse than exact artist overlap.
const (
	vibeGenreWeight  = 0.7
	vibeArtistWeight = 0.3
)

// Weights is the weight pair for the explicit (linked-profile) composite
// score. The genre and artist weights must sum to 1 so the composite
// stays in [0,1].
type Weights struct {
	Genre  float64
	Artist float64
}

// DefaultWeights is the canonical explicit-score weighting.
var DefaultWeights = Weights{Genre: 0.7, Artist: 0.3}

// Jaccard returns |A∩B| / |A∪B| for two sets. Returns 0 when either set
// is empty, avoiding the 0/0 case.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// Cosine returns the cosine similarity of two sparse vectors over the
// union of their keys, treating missing keys as 0. Returns 0 when either
// vector has zero magnitude.
func Cosine(a, b map[string]float64) float64 {
	var dot, magA, magB float64
	for k, va := range a {
		magA += va * va
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		magB += vb * vb
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// VibeScore is the implicit composite: weighted Jaccard overlap of the
// genre and artist sets of two listening-history signatures. Symmetric,
// in [0,1].
func VibeScore(a, b Signature) float64 {
	genre := Jaccard(a.Genres, b.Genres)
	artist := Jaccard(a.Artists, b.Artists)
	return vibeGenreWeight*genre + vibeArtistWeight*artist
}

// SpotifyScore is the explicit composite: weighted cosine similarity of
// the genre vectors plus Jaccard overlap of the top-artist name sets.
// Symmetric, in [0,1]. Either party missing a usable profile scores 0
// through the empty-input behavior of the underlying metrics.
func SpotifyScore(a, b Profile, w Weights) float64 {
	genre := Cosine(a.GenreVector, b.GenreVector)
	artist := Jaccard(a.ArtistNameSet(), b.ArtistNameSet())
	return w.Genre*genre + w.Artist*artist
}

// Shared returns up to limit elements present in both sets, sorted
// alphabetically for deterministic display.
func Shared(a, b map[string]bool, limit int) []string {
	var common []string
	for k := range a {
		if b[k] {
			common = append(common, k)
		}
	}
	sort.Strings(common)
	if limit > 0 && len(common) > limit {
		common = common[:limit]
	}
	return common
}

// SharedVectorKeys returns up to limit genre keys present in both
// vectors, sorted alphabetically.
func SharedVectorKeys(a, b map[string]float64, limit int) []string {
	var common []string
	for k := range a {
		if _, ok := b[k]; ok {
			common = append(common, k)
		}
	}
	sort.Strings(common)
	if limit > 0 && len(common) > limit {
		common = common[:limit]
	}
	return common
}
