package match

import (
	"context"
	"testing"

	"github.com/hertzfm/hertz/internal/musicprofile"
	"github.com/hertzfm/hertz/internal/taste"
	"github.com/hertzfm/hertz/internal/users"
)

// ---------- in-memory sources ----------

type fakeHistory map[string][]taste.Play

func (f fakeHistory) PlaysByUser(_ context.Context, userID string, _ int) ([]taste.Play, error) {
	return f[userID], nil
}

type fakeProfiles map[string]*musicprofile.Record

func (f fakeProfiles) Get(_ context.Context, userID string) (*musicprofile.Record, error) {
	rec, ok := f[userID]
	if !ok {
		return nil, musicprofile.ErrNotFound
	}
	return rec, nil
}

func (f fakeProfiles) GetMany(_ context.Context, userIDs []string) (map[string]*musicprofile.Record, error) {
	out := make(map[string]*musicprofile.Record)
	for _, id := range userIDs {
		if rec, ok := f[id]; ok && rec.IsSpotifyLinked {
			out[id] = rec
		}
	}
	return out, nil
}

type fakeDir []*users.User

func (f fakeDir) List(_ context.Context, excludeID string, limit, _ int) ([]*users.User, error) {
	var out []*users.User
	for _, u := range f {
		if u.ID == excludeID {
			continue
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeRels map[string]string

func (f fakeRels) PartnerStatuses(_ context.Context, _ string) (map[string]string, error) {
	return map[string]string(f), nil
}

func user(id string) *users.User {
	return &users.User{ID: id, DisplayName: id}
}

func linked(p taste.Profile) *musicprofile.Record {
	return &musicprofile.Record{Profile: p, IsSpotifyLinked: true}
}

func newTestRanker(h fakeHistory, p fakeProfiles, d fakeDir, r fakeRels) *Ranker {
	return NewRanker(h, p, d, r, nil, DefaultConfig())
}

// ---------- tests ----------

func TestRank_KnownVibeScenario(t *testing.T) {
	h := fakeHistory{
		"me":  {{Genre: "Rock", Artist: "X"}, {Genre: "Jazz", Artist: "Y"}},
		"bob": {{Genre: "Rock", Artist: "Z"}},
	}
	r := newTestRanker(h, fakeProfiles{}, fakeDir{user("me"), user("bob")}, fakeRels{})

	got, err := r.Rank(context.Background(), "me", ViewAll)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}

	c := got[0]
	if c.UserID != "bob" {
		t.Errorf("candidate = %s, want bob", c.UserID)
	}
	// Genre Jaccard 0.5, artist 0 → 0.35.
	if c.VibeScore < 0.349 || c.VibeScore > 0.351 {
		t.Errorf("vibe = %v, want 0.35", c.VibeScore)
	}
	if c.CombinedScore != 35 {
		t.Errorf("combined = %d, want 35", c.CombinedScore)
	}
	if c.SpotifyScore != 0 {
		t.Errorf("spotify = %v, want 0 (no linked profiles)", c.SpotifyScore)
	}
	if len(c.SharedGenres) != 1 || c.SharedGenres[0] != "rock" {
		t.Errorf("shared genres = %v, want [rock]", c.SharedGenres)
	}
}

func TestRank_ThresholdExcludesWeakCandidates(t *testing.T) {
	h := fakeHistory{
		"me": {
			{Genre: "Rock", Artist: "A"}, {Genre: "Jazz", Artist: "B"},
			{Genre: "Soul", Artist: "C"}, {Genre: "Funk", Artist: "D"},
			{Genre: "Metal", Artist: "E"}, {Genre: "Pop", Artist: "F"},
			{Genre: "Folk", Artist: "G"}, {Genre: "Blues", Artist: "H"},
		},
		// One shared genre of 8+1 distinct → Jaccard 1/8, vibe ≈ 0.0875 ≤ 0.1.
		"weak": {{Genre: "Rock", Artist: "Zed"}},
	}
	r := newTestRanker(h, fakeProfiles{}, fakeDir{user("weak")}, fakeRels{})

	got, err := r.Rank(context.Background(), "me", ViewAll)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected weak candidate excluded, got %+v", got)
	}
}

func TestRank_SortedDescendingWithStableTies(t *testing.T) {
	myPlays := []taste.Play{{Genre: "Rock", Artist: "X"}, {Genre: "Jazz", Artist: "Y"}}
	h := fakeHistory{
		"me": myPlays,
		// Identical history → vibe 1.0.
		"twin": myPlays,
		// Half genre overlap → 0.35.
		"half": {{Genre: "Rock", Artist: "Z"}},
		// Same 0.35 as half; ties break by user ID ascending.
		"also-half": {{Genre: "Jazz", Artist: "W"}},
	}
	r := newTestRanker(h, fakeProfiles{},
		fakeDir{user("half"), user("twin"), user("also-half")}, fakeRels{})

	got, err := r.Rank(context.Background(), "me", ViewAll)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].UserID != "twin" {
		t.Errorf("top candidate = %s, want twin", got[0].UserID)
	}
	if got[1].UserID != "also-half" || got[2].UserID != "half" {
		t.Errorf("tie order = [%s %s], want [also-half half]", got[1].UserID, got[2].UserID)
	}
	for i := 1; i < len(got); i++ {
		if maxScore(got[i]) > maxScore(got[i-1]) {
			t.Errorf("ranking not monotonically descending at %d", i)
		}
	}
}

func TestRank_ExcludesExistingRelationships(t *testing.T) {
	myPlays := []taste.Play{{Genre: "Rock", Artist: "X"}}
	h := fakeHistory{
		"me":        myPlays,
		"pending":   myPlays,
		"connected": myPlays,
		"fresh":     myPlays,
	}
	rels := fakeRels{"pending": "pending", "connected": "connected"}
	r := newTestRanker(h, fakeProfiles{},
		fakeDir{user("pending"), user("connected"), user("fresh")}, rels)

	got, err := r.Rank(context.Background(), "me", ViewAll)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "fresh" {
		t.Errorf("expected only fresh candidate, got %+v", got)
	}
}

func TestRank_SpotifyOnlyView(t *testing.T) {
	meProfile := taste.Profile{
		TopArtists:  []taste.Artist{{Name: "Nirvana"}},
		GenreVector: map[string]float64{"grunge": 1.0},
	}
	strong := taste.Profile{
		TopArtists:  []taste.Artist{{Name: "Nirvana"}},
		GenreVector: map[string]float64{"grunge": 1.0},
	}
	weak := taste.Profile{
		TopArtists:  []taste.Artist{{Name: "Brad Mehldau"}},
		GenreVector: map[string]float64{"jazz": 1.0},
	}

	p := fakeProfiles{
		"me":     linked(meProfile),
		"strong": linked(strong),
		"weak":   linked(weak),
	}
	r := newTestRanker(fakeHistory{}, p, fakeDir{user("strong"), user("weak")}, fakeRels{})

	got, err := r.Rank(context.Background(), "me", ViewSpotifyOnly)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "strong" {
		t.Fatalf("expected only the strong explicit match, got %+v", got)
	}
	if got[0].SpotifyScore < 0.999 {
		t.Errorf("spotify score = %v, want 1.0", got[0].SpotifyScore)
	}
	if got[0].CombinedScore != 100 {
		t.Errorf("combined = %d, want 100", got[0].CombinedScore)
	}
}

func TestRank_UnlinkedProfileScoresZeroExplicit(t *testing.T) {
	meProfile := linked(taste.Profile{GenreVector: map[string]float64{"rock": 1.0}})
	candRec := &musicprofile.Record{ // present but unlinked
		Profile:         taste.Profile{GenreVector: map[string]float64{"rock": 1.0}},
		IsSpotifyLinked: false,
	}
	p := fakeProfiles{"me": meProfile, "cand": candRec}
	h := fakeHistory{
		"me":   {{Genre: "Rock", Artist: "X"}},
		"cand": {{Genre: "Rock", Artist: "X"}},
	}
	r := newTestRanker(h, p, fakeDir{user("cand")}, fakeRels{})

	got, err := r.Rank(context.Background(), "me", ViewAll)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].SpotifyScore != 0 {
		t.Errorf("spotify score = %v, want 0 for unlinked candidate", got[0].SpotifyScore)
	}
	if got[0].VibeScore < 0.999 {
		t.Errorf("vibe score = %v, want 1.0 from identical history", got[0].VibeScore)
	}
}
