package gourdianguard

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkTokenCodec(b *testing.B) {
	now := time.Now().Truncate(time.Second)
	codec, err := NewTokenCodec(testConfig())
	if err != nil {
		b.Fatal(err)
	}
	claims := testClaims(now)
	claims.ExpiresAt = now.Add(time.Hour)

	b.Run("Sign", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := codec.Sign(claims, AccessToken); err != nil {
				b.Fatal(err)
			}
		}
	})

	token, err := codec.Sign(claims, AccessToken)
	if err != nil {
		b.Fatal(err)
	}

	b.Run("Verify", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := codec.Verify(token, AccessToken, "user"); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkSessionSetEncoding(b *testing.B) {
	now := time.Now()
	var set SessionSet
	for i := 0; i < 10; i++ {
		set = append(set, testRecord("web", now, time.Hour, 24*time.Hour))
	}

	data, err := EncodeSessionSet(set)
	if err != nil {
		b.Fatal(err)
	}

	b.Run("Encode", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := EncodeSessionSet(set); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Decode", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := DecodeSessionSet(data); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkServiceIssueVerify(b *testing.B) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Hour)
	defer store.Close()

	service, err := NewService(testConfig(), store)
	if err != nil {
		b.Fatal(err)
	}

	b.Run("Issue", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			extend := map[string]any{"id": fmt.Sprint(i % 100)}
			if _, err := service.Issue(ctx, "user", extend, IssueOptions{}); err != nil {
				b.Fatal(err)
			}
		}
	})

	pair, err := service.Issue(ctx, "user", map[string]any{"id": "bench"}, IssueOptions{})
	if err != nil {
		b.Fatal(err)
	}

	b.Run("Verify", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := service.Verify(ctx, "user", pair.AccessToken, AccessToken); err != nil {
				b.Fatal(err)
			}
		}
	})
}
