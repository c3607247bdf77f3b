package match

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hertzfm/hertz/internal/taste"
)

const (
	// sigPrefix is the Redis key prefix for cached taste signatures.
	sigPrefix = "taste:sig:"

	// SignatureTTL bounds how stale a cached signature can get before
	// it is refolded from listening history.
	SignatureTTL = 5 * time.Minute
)

// SignatureCache stores computed implicit signatures in Redis so a
// ranking pass doesn't refold every candidate's history on every
// request. Entries expire on their own; recording a new listening event
// invalidates eagerly.
type SignatureCache struct {
	rdb *redis.Client
}

// NewSignatureCache creates a cache backed by the given Redis client.
func NewSignatureCache(rdb *redis.Client) *SignatureCache {
	return &SignatureCache{rdb: rdb}
}

// Get retrieves a cached signature. The second return is false on a miss.
func (c *SignatureCache) Get(ctx context.Context, userID string) (taste.Signature, bool, error) {
	result, err := c.rdb.HGetAll(ctx, sigPrefix+userID).Result()
	if err != nil {
		return taste.Signature{}, false, err
	}
	if len(result) == 0 {
		return taste.Signature{}, false, nil
	}

	sig := taste.NewSignature()
	genres, err := decodeMembers(result["genres"])
	if err != nil {
		return taste.Signature{}, false, fmt.Errorf("match: decode cached genres for %s: %w", userID, err)
	}
	artists, err := decodeMembers(result["artists"])
	if err != nil {
		return taste.Signature{}, false, fmt.Errorf("match: decode cached artists for %s: %w", userID, err)
	}
	for _, g := range genres {
		sig.Genres[g] = true
	}
	for _, a := range artists {
		sig.Artists[a] = true
	}
	return sig, true, nil
}

// Set stores a signature with the standard TTL.
func (c *SignatureCache) Set(ctx context.Context, userID string, sig taste.Signature) error {
	key := sigPrefix + userID

	genres, err := encodeMembers(sig.Genres)
	if err != nil {
		return fmt.Errorf("match: encode genres for %s: %w", userID, err)
	}
	artists, err := encodeMembers(sig.Artists)
	if err != nil {
		return fmt.Errorf("match: encode artists for %s: %w", userID, err)
	}

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"genres":  genres,
		"artists": artists,
	})
	pipe.Expire(ctx, key, SignatureTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate drops a user's cached signature, forcing the next ranking
// pass to refold their history. Called after a new listening event.
func (c *SignatureCache) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, sigPrefix+userID).Err()
}

// Members are stored as JSON arrays so labels survive the round trip
// byte for byte, whatever characters they carry.
func encodeMembers(set map[string]bool) (string, error) {
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	data, err := json.Marshal(members)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMembers(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var members []string
	if err := json.Unmarshal([]byte(encoded), &members); err != nil {
		return nil, err
	}
	return members, nil
}
