package taste

import "sort"

// Artist is one entry of an externally linked profile's top-artist list.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	Image  string   `json:"image"`
}

// GenreCount is one entry of a profile's ranked genre list.
type GenreCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Profile is a user's explicit taste profile built from a linked music
// service. GenreVector is a probability distribution: values are
// non-negative and sum to 1.0 over all keys, or the map is empty when no
// genre data was available.
type Profile struct {
	TopArtists  []Artist           `json:"top_artists"`
	TopGenres   []GenreCount       `json:"top_genres"`
	GenreVector map[string]float64 `json:"genre_vector"`
}

// IsEmpty reports whether the profile carries no usable taste data.
// An empty profile must never be persisted as a linked account.
func (p Profile) IsEmpty() bool {
	return len(p.TopArtists) == 0 && len(p.GenreVector) == 0
}

// BuildExplicitProfile constructs a Profile from a resolved top-artist
// list. Each artist contributes one count per genre tag it carries;
// duplicate tags across artists are additive. Genre counts are
// normalized into GenreVector by dividing by the total count; when the
// total is zero the vector is the empty map. TopGenres is ordered by
// descending count with first-seen order breaking ties, so the output is
// deterministic for a given input order.
func BuildExplicitProfile(artists []Artist) Profile {
	counts := make(map[string]int)
	var order []string // genres in discovery order, for stable tie-breaks

	for _, a := range artists {
		for _, g := range a.Genres {
			if _, seen := counts[g]; !seen {
				order = append(order, g)
			}
			counts[g]++
		}
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	vector := make(map[string]float64)
	if total > 0 {
		for g, c := range counts {
			vector[g] = float64(c) / float64(total)
		}
	}

	top := make([]GenreCount, 0, len(order))
	for _, g := range order {
		top = append(top, GenreCount{Name: g, Count: counts[g]})
	}
	// Stable sort preserves discovery order among equal counts.
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Count > top[j].Count
	})

	return Profile{
		TopArtists:  artists,
		TopGenres:   top,
		GenreVector: vector,
	}
}

// ArtistNameSet returns the lower-cased set of artist names, for
// overlap scoring against another profile.
func (p Profile) ArtistNameSet() map[string]bool {
	set := make(map[string]bool, len(p.TopArtists))
	for _, a := range p.TopArtists {
		if name := normalize(a.Name); name != "" {
			set[name] = true
		}
	}
	return set
}
