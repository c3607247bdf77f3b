package taste

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestJaccard_IdenticalSets(t *testing.T) {
	a := set("rock", "jazz", "soul")
	if got := Jaccard(a, a); !almostEqual(got, 1.0) {
		t.Errorf("Jaccard(A,A) = %v, want 1.0", got)
	}
}

func TestJaccard_EmptySet(t *testing.T) {
	b := set("rock", "jazz")
	if got := Jaccard(nil, b); got != 0 {
		t.Errorf("Jaccard(∅,B) = %v, want 0", got)
	}
	if got := Jaccard(b, map[string]bool{}); got != 0 {
		t.Errorf("Jaccard(B,∅) = %v, want 0", got)
	}
	if got := Jaccard(nil, nil); got != 0 {
		t.Errorf("Jaccard(∅,∅) = %v, want 0 (not NaN)", got)
	}
}

func TestJaccard_PartialOverlap(t *testing.T) {
	a := set("rock", "jazz")
	b := set("rock")
	// intersection 1, union 2.
	if got := Jaccard(a, b); !almostEqual(got, 0.5) {
		t.Errorf("Jaccard = %v, want 0.5", got)
	}
}

func TestJaccard_Symmetric(t *testing.T) {
	a := set("rock", "jazz", "blues")
	b := set("jazz", "metal")
	if Jaccard(a, b) != Jaccard(b, a) {
		t.Error("Jaccard is not symmetric")
	}
}

func TestCosine_IdenticalVector(t *testing.T) {
	v := map[string]float64{"rock": 0.6, "jazz": 0.4}
	if got := Cosine(v, v); !almostEqual(got, 1.0) {
		t.Errorf("Cosine(V,V) = %v, want 1.0", got)
	}
}

func TestCosine_ZeroMagnitude(t *testing.T) {
	v := map[string]float64{"rock": 1.0}
	if got := Cosine(v, nil); got != 0 {
		t.Errorf("Cosine(V,∅) = %v, want 0", got)
	}
	if got := Cosine(map[string]float64{}, v); got != 0 {
		t.Errorf("Cosine(∅,V) = %v, want 0", got)
	}
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	a := map[string]float64{"rock": 1.0}
	b := map[string]float64{"jazz": 1.0}
	if got := Cosine(a, b); got != 0 {
		t.Errorf("Cosine of disjoint vectors = %v, want 0", got)
	}
}

func TestCosine_Symmetric(t *testing.T) {
	a := map[string]float64{"rock": 0.5, "jazz": 0.3, "soul": 0.2}
	b := map[string]float64{"rock": 0.1, "metal": 0.9}
	if got, want := Cosine(a, b), Cosine(b, a); !almostEqual(got, want) {
		t.Errorf("Cosine not symmetric: %v vs %v", got, want)
	}
}

func TestVibeScore_KnownScenario(t *testing.T) {
	// User A played Rock/X and Jazz/Y; user B played Rock/Z.
	a := ExtractImplicit([]Play{
		{Genre: "Rock", Artist: "X"},
		{Genre: "Jazz", Artist: "Y"},
	})
	b := ExtractImplicit([]Play{
		{Genre: "Rock", Artist: "Z"},
	})

	// Genre Jaccard 1/2, artist Jaccard 0 → 0.7*0.5 = 0.35.
	if got := VibeScore(a, b); !almostEqual(got, 0.35) {
		t.Errorf("VibeScore = %v, want 0.35", got)
	}
}

func TestVibeScore_IdenticalHistory(t *testing.T) {
	plays := []Play{
		{Genre: "Rock", Artist: "X"},
		{Genre: "Jazz", Artist: "Y"},
	}
	a := ExtractImplicit(plays)
	b := ExtractImplicit(plays)

	if got := VibeScore(a, b); !almostEqual(got, 1.0) {
		t.Errorf("VibeScore of identical histories = %v, want 1.0", got)
	}
	if VibeScore(a, b) != VibeScore(b, a) {
		t.Error("VibeScore is not symmetric")
	}
}

func TestSpotifyScore_DisjointGenreVectors(t *testing.T) {
	a := Profile{GenreVector: map[string]float64{"rock": 1.0}}
	b := Profile{GenreVector: map[string]float64{"jazz": 1.0}}

	// Cosine 0 and no artist overlap → 0 regardless of weighting.
	if got := SpotifyScore(a, b, DefaultWeights); got != 0 {
		t.Errorf("SpotifyScore = %v, want 0", got)
	}
}

func TestSpotifyScore_IdenticalProfiles(t *testing.T) {
	p := Profile{
		TopArtists:  []Artist{{ID: "1", Name: "Nirvana"}, {ID: "2", Name: "Miles Davis"}},
		GenreVector: map[string]float64{"grunge": 0.5, "jazz": 0.5},
	}
	if got := SpotifyScore(p, p, DefaultWeights); !almostEqual(got, 1.0) {
		t.Errorf("SpotifyScore of identical profiles = %v, want 1.0", got)
	}
}

func TestShared_SortedAndCapped(t *testing.T) {
	a := set("rock", "jazz", "soul", "metal")
	b := set("soul", "rock", "jazz")

	got := Shared(a, b, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 shared entries, got %v", got)
	}
	// Alphabetical: jazz before rock.
	if got[0] != "jazz" || got[1] != "rock" {
		t.Errorf("expected [jazz rock], got %v", got)
	}
}
