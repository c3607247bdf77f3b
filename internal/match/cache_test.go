package match

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/hertzfm/hertz/internal/taste"
)

// newTestCache creates a SignatureCache against a local Redis instance
// and cleans up test keys on exit. Requires a running Redis on
// localhost:6379; skipped otherwise.
func newTestCache(t *testing.T) *SignatureCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, sigPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return NewSignatureCache(client)
}

func TestSignatureCache_RoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	sig := taste.NewSignature()
	sig.Genres["rock"] = true
	sig.Genres["jazz"] = true
	sig.Artists["nirvana"] = true

	if err := cache.Set(ctx, "test_roundtrip", sig); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := cache.Get(ctx, "test_roundtrip")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Genres) != 2 || !got.Genres["rock"] || !got.Genres["jazz"] {
		t.Errorf("genres = %v", got.Genres)
	}
	if len(got.Artists) != 1 || !got.Artists["nirvana"] {
		t.Errorf("artists = %v", got.Artists)
	}
}

func TestSignatureCache_LabelsWithNewlinesSurviveRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	// Genre and artist labels arrive from clients unvalidated; a label
	// carrying an interior newline must come back as one member, not
	// split into several.
	sig := taste.NewSignature()
	sig.Genres["rock\njazz"] = true
	sig.Artists["the\r\nband"] = true

	if err := cache.Set(ctx, "test_newline", sig); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := cache.Get(ctx, "test_newline")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Genres) != 1 || !got.Genres["rock\njazz"] {
		t.Errorf("genres = %v, want the single literal label", got.Genres)
	}
	if len(got.Artists) != 1 || !got.Artists["the\r\nband"] {
		t.Errorf("artists = %v, want the single literal label", got.Artists)
	}
}

func TestMemberEncodingRoundTrip(t *testing.T) {
	set := map[string]bool{
		"rock\njazz": true,
		"soul":       true,
		"":           true,
	}

	encoded, err := encodeMembers(set)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	members, err := decodeMembers(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(members) != len(set) {
		t.Fatalf("decoded %d members, want %d: %v", len(members), len(set), members)
	}
	for _, m := range members {
		if !set[m] {
			t.Errorf("unexpected member %q", m)
		}
	}
}

func TestSignatureCache_MissAfterInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	sig := taste.NewSignature()
	sig.Genres["soul"] = true

	if err := cache.Set(ctx, "test_invalidate", sig); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Invalidate(ctx, "test_invalidate"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	_, ok, err := cache.Get(ctx, "test_invalidate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected miss after invalidate")
	}
}

func TestSignatureCache_EmptySignature(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "test_empty", taste.NewSignature()); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := cache.Get(ctx, "test_empty")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit for stored empty signature")
	}
	if !got.IsEmpty() {
		t.Errorf("expected empty signature, got %v / %v", got.Genres, got.Artists)
	}
}
