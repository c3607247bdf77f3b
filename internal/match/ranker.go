// Package match ranks candidate users against the caller by musical
// taste. Two independent signals feed the ranking: the implicit vibe
// score folded from listening history, and the explicit score from
// linked Spotify profiles. A candidate may have one, both, or neither.
package match

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hertzfm/hertz/internal/metrics"
	"github.com/hertzfm/hertz/internal/musicprofile"
	"github.com/hertzfm/hertz/internal/taste"
	"github.com/hertzfm/hertz/internal/users"
)

// View selects which filtered ranking the caller receives.
type View string

const (
	// ViewAll keeps every candidate above the inclusion threshold.
	ViewAll View = "all"

	// ViewSpotifyOnly keeps candidates with a strong explicit score and
	// re-sorts by it.
	ViewSpotifyOnly View = "spotify"
)

const (
	// InclusionThreshold is the minimum score (on either signal) for a
	// candidate to appear at all.
	InclusionThreshold = 0.1

	// SpotifyViewThreshold is the explicit-score floor for the
	// spotify-only view.
	SpotifyViewThreshold = 0.8

	// sharedLimit caps the provenance lists carried per candidate.
	sharedLimit = 5
)

// Candidate is one scored entry of a ranking pass. Ephemeral: computed
// per request, never persisted.
type Candidate struct {
	UserID        string   `json:"user_id"`
	DisplayName   string   `json:"display_name"`
	AvatarURL     string   `json:"avatar_url"`
	VibeScore     float64  `json:"vibe_score"`
	SpotifyScore  float64  `json:"spotify_score"`
	CombinedScore int      `json:"combined_score"` // round(max(vibe, spotify)*100)
	SharedGenres  []string `json:"shared_genres,omitempty"`
	SharedArtists []string `json:"shared_artists,omitempty"`
}

// HistorySource supplies listening plays for signature extraction.
type HistorySource interface {
	PlaysByUser(ctx context.Context, userID string, limit int) ([]taste.Play, error)
}

// ProfileSource supplies linked explicit profiles.
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*musicprofile.Record, error)
	GetMany(ctx context.Context, userIDs []string) (map[string]*musicprofile.Record, error)
}

// DirectorySource pages the candidate pool.
type DirectorySource interface {
	List(ctx context.Context, excludeID string, limit, offset int) ([]*users.User, error)
}

// RelationSource reports existing relationships for the post-filter.
type RelationSource interface {
	PartnerStatuses(ctx context.Context, userID string) (map[string]string, error)
}

// Config tunes a Ranker.
type Config struct {
	PoolLimit    int           // max candidates considered per pass
	Workers      int           // concurrent scoring workers
	HistoryDepth int           // plays folded into a signature
	Weights      taste.Weights // explicit composite weights
}

// DefaultConfig returns the standard ranker tuning.
func DefaultConfig() Config {
	return Config{
		PoolLimit:    100,
		Workers:      8,
		HistoryDepth: 500,
		Weights:      taste.DefaultWeights,
	}
}

// Ranker scores and orders match candidates.
type Ranker struct {
	history  HistorySource
	profiles ProfileSource
	dir      DirectorySource
	rels     RelationSource
	cache    *SignatureCache // optional
	cfg      Config
}

// NewRanker assembles a Ranker. cache may be nil to always recompute
// signatures from history.
func NewRanker(history HistorySource, profiles ProfileSource, dir DirectorySource, rels RelationSource, cache *SignatureCache, cfg Config) *Ranker {
	if cfg.PoolLimit <= 0 {
		cfg.PoolLimit = DefaultConfig().PoolLimit
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = DefaultConfig().HistoryDepth
	}
	if cfg.Weights.Genre == 0 && cfg.Weights.Artist == 0 {
		cfg.Weights = taste.DefaultWeights
	}
	return &Ranker{
		history:  history,
		profiles: profiles,
		dir:      dir,
		rels:     rels,
		cache:    cache,
		cfg:      cfg,
	}
}

// Rank scores every eligible candidate against the caller and returns
// the requested view, sorted descending by the dominant signal with the
// user ID breaking ties so output is deterministic.
//
// Candidates already in a pending, connected or blocked relationship
// with the caller are excluded before scoring. Data errors for a single
// candidate degrade that candidate to zero scores rather than failing
// the pass.
func (r *Ranker) Rank(ctx context.Context, userID string, view View) ([]Candidate, error) {
	start := time.Now()
	defer func() {
		metrics.RankDuration.Observe(time.Since(start).Seconds())
	}()

	selfSig, err := r.signature(ctx, userID)
	if err != nil {
		// No usable history is a degraded pass, not a failure.
		log.Printf("[match] signature for %s: %v", userID, err)
		selfSig = taste.NewSignature()
	}
	selfProfile := r.linkedProfile(ctx, userID)

	statuses, err := r.rels.PartnerStatuses(ctx, userID)
	if err != nil {
		return nil, err
	}

	pool, err := r.dir.List(ctx, userID, r.cfg.PoolLimit, 0)
	if err != nil {
		return nil, err
	}

	// Post-filter: anyone with an existing relationship, whatever its
	// status, is out of the pool.
	eligible := pool[:0]
	for _, u := range pool {
		if _, related := statuses[u.ID]; !related {
			eligible = append(eligible, u)
		}
	}

	// Linked profiles for the whole pool in one query.
	ids := make([]string, len(eligible))
	for i, u := range eligible {
		ids[i] = u.ID
	}
	profileByID, err := r.profiles.GetMany(ctx, ids)
	if err != nil {
		log.Printf("[match] profiles for pool: %v", err)
		profileByID = map[string]*musicprofile.Record{}
	}

	scored := r.scorePool(ctx, selfSig, selfProfile, eligible, profileByID)
	metrics.CandidatesScored.Add(float64(len(eligible)))

	kept := scored[:0]
	for _, c := range scored {
		if c.VibeScore > InclusionThreshold || c.SpotifyScore > InclusionThreshold {
			kept = append(kept, c)
		}
	}

	switch view {
	case ViewSpotifyOnly:
		filtered := kept[:0]
		for _, c := range kept {
			if c.SpotifyScore >= SpotifyViewThreshold {
				filtered = append(filtered, c)
			}
		}
		kept = filtered
		sort.SliceStable(kept, func(i, j int) bool {
			if kept[i].SpotifyScore != kept[j].SpotifyScore {
				return kept[i].SpotifyScore > kept[j].SpotifyScore
			}
			return kept[i].UserID < kept[j].UserID
		})
	default:
		sort.SliceStable(kept, func(i, j int) bool {
			mi, mj := maxScore(kept[i]), maxScore(kept[j])
			if mi != mj {
				return mi > mj
			}
			return kept[i].UserID < kept[j].UserID
		})
	}

	metrics.MatchesReturned.Observe(float64(len(kept)))
	return kept, nil
}

// scorePool fans candidate scoring out over a bounded worker pool.
// Candidates are independent, so order of computation doesn't matter;
// results keep the pool's index positions.
func (r *Ranker) scorePool(ctx context.Context, selfSig taste.Signature, selfProfile taste.Profile, pool []*users.User, profiles map[string]*musicprofile.Record) []Candidate {
	results := make([]Candidate, len(pool))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := r.cfg.Workers
	if workers > len(pool) {
		workers = len(pool)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.scoreCandidate(ctx, selfSig, selfProfile, pool[i], profiles[pool[i].ID])
			}
		}()
	}
	for i := range pool {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// scoreCandidate computes both signals for one candidate.
func (r *Ranker) scoreCandidate(ctx context.Context, selfSig taste.Signature, selfProfile taste.Profile, cand *users.User, rec *musicprofile.Record) Candidate {
	c := Candidate{
		UserID:      cand.ID,
		DisplayName: cand.DisplayName,
		AvatarURL:   cand.AvatarURL,
	}

	candSig, err := r.signature(ctx, cand.ID)
	if err != nil {
		log.Printf("[match] signature for candidate %s: %v", cand.ID, err)
		candSig = taste.NewSignature()
	}
	c.VibeScore = taste.VibeScore(selfSig, candSig)

	var candProfile taste.Profile
	if rec != nil && rec.IsSpotifyLinked {
		candProfile = rec.Profile
	}
	// Explicit score is 0 unless both parties have a linked profile;
	// the metrics' empty-input behavior handles that for free.
	c.SpotifyScore = taste.SpotifyScore(selfProfile, candProfile, r.cfg.Weights)

	c.CombinedScore = int(math.Round(maxScore(c) * 100))

	// Provenance follows the dominant signal.
	if c.SpotifyScore > c.VibeScore {
		c.SharedGenres = taste.SharedVectorKeys(selfProfile.GenreVector, candProfile.GenreVector, sharedLimit)
		c.SharedArtists = taste.Shared(selfProfile.ArtistNameSet(), candProfile.ArtistNameSet(), sharedLimit)
	} else {
		c.SharedGenres = taste.Shared(selfSig.Genres, candSig.Genres, sharedLimit)
		c.SharedArtists = taste.Shared(selfSig.Artists, candSig.Artists, sharedLimit)
	}
	return c
}

// signature returns the user's implicit signature, via the cache when
// one is configured.
func (r *Ranker) signature(ctx context.Context, userID string) (taste.Signature, error) {
	if r.cache != nil {
		if sig, ok, err := r.cache.Get(ctx, userID); err == nil && ok {
			return sig, nil
		}
	}

	plays, err := r.history.PlaysByUser(ctx, userID, r.cfg.HistoryDepth)
	if err != nil {
		return taste.NewSignature(), err
	}
	sig := taste.ExtractImplicit(plays)

	if r.cache != nil {
		if err := r.cache.Set(ctx, userID, sig); err != nil {
			log.Printf("[match] cache signature for %s: %v", userID, err)
		}
	}
	return sig, nil
}

// linkedProfile fetches the caller's explicit profile, degrading to an
// empty profile when absent or unlinked.
func (r *Ranker) linkedProfile(ctx context.Context, userID string) taste.Profile {
	rec, err := r.profiles.Get(ctx, userID)
	if err != nil || rec == nil || !rec.IsSpotifyLinked {
		return taste.Profile{}
	}
	return rec.Profile
}

func maxScore(c Candidate) float64 {
	return math.Max(c.VibeScore, c.SpotifyScore)
}
