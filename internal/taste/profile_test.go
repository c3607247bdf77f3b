package taste

import (
	"math"
	"testing"
)

func TestExtractImplicit_LowercasesAndDedupes(t *testing.T) {
	sig := ExtractImplicit([]Play{
		{Genre: "Rock", Artist: "The Strokes"},
		{Genre: "rock", Artist: "the strokes"},
		{Genre: " Jazz ", Artist: ""},
	})

	if len(sig.Genres) != 2 {
		t.Errorf("expected 2 genres, got %v", sig.Genres)
	}
	if !sig.Genres["rock"] || !sig.Genres["jazz"] {
		t.Errorf("expected lowercased genres, got %v", sig.Genres)
	}
	if len(sig.Artists) != 1 || !sig.Artists["the strokes"] {
		t.Errorf("expected single lowercased artist, got %v", sig.Artists)
	}
}

func TestExtractImplicit_EmptyInput(t *testing.T) {
	sig := ExtractImplicit(nil)
	if !sig.IsEmpty() {
		t.Errorf("expected empty signature, got %+v", sig)
	}
	if sig.Genres == nil || sig.Artists == nil {
		t.Error("expected allocated (non-nil) sets for empty input")
	}
}

func TestBuildExplicitProfile_VectorSumsToOne(t *testing.T) {
	p := BuildExplicitProfile([]Artist{
		{ID: "1", Name: "A", Genres: []string{"indie rock", "garage rock"}},
		{ID: "2", Name: "B", Genres: []string{"indie rock"}},
		{ID: "3", Name: "C", Genres: []string{"jazz"}},
	})

	var sum float64
	for _, v := range p.GenreVector {
		if v < 0 {
			t.Errorf("negative vector weight: %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("genre vector sums to %v, want 1.0", sum)
	}

	// indie rock appears twice out of 4 total counts.
	if got := p.GenreVector["indie rock"]; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("indie rock weight = %v, want 0.5", got)
	}
}

func TestBuildExplicitProfile_NoGenres(t *testing.T) {
	p := BuildExplicitProfile([]Artist{{ID: "1", Name: "A"}})

	if len(p.GenreVector) != 0 {
		t.Errorf("expected empty vector, got %v", p.GenreVector)
	}
	if len(p.TopGenres) != 0 {
		t.Errorf("expected no top genres, got %v", p.TopGenres)
	}
	// Artists are still carried; the profile is not empty.
	if p.IsEmpty() {
		t.Error("profile with artists should not be considered empty")
	}
}

func TestBuildExplicitProfile_TopGenresOrdering(t *testing.T) {
	p := BuildExplicitProfile([]Artist{
		{ID: "1", Name: "A", Genres: []string{"shoegaze", "dream pop"}},
		{ID: "2", Name: "B", Genres: []string{"dream pop"}},
		{ID: "3", Name: "C", Genres: []string{"ambient"}},
	})

	want := []GenreCount{
		{Name: "dream pop", Count: 2},
		{Name: "shoegaze", Count: 1}, // discovered before ambient, tie kept
		{Name: "ambient", Count: 1},
	}
	if len(p.TopGenres) != len(want) {
		t.Fatalf("expected %d genres, got %v", len(want), p.TopGenres)
	}
	for i, w := range want {
		if p.TopGenres[i] != w {
			t.Errorf("TopGenres[%d] = %+v, want %+v", i, p.TopGenres[i], w)
		}
	}
}

func TestBuildExplicitProfile_EmptyInput(t *testing.T) {
	p := BuildExplicitProfile(nil)
	if !p.IsEmpty() {
		t.Errorf("expected empty profile, got %+v", p)
	}
}

func TestArtistNameSet_Normalized(t *testing.T) {
	p := Profile{TopArtists: []Artist{
		{Name: "Radiohead"},
		{Name: "RADIOHEAD"},
		{Name: " Portishead "},
	}}
	names := p.ArtistNameSet()
	if len(names) != 2 {
		t.Errorf("expected 2 names, got %v", names)
	}
	if !names["radiohead"] || !names["portishead"] {
		t.Errorf("expected normalized names, got %v", names)
	}
}
