package gourdianguard_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gourdian25/gourdianguard"
)

func ExampleService() {
	config := gourdianguard.DefaultConfig(
		"your-very-secure-access-secret-at-least-32-bytes",
		"your-very-secure-refresh-secret-at-least-32-bytes",
	)
	config.Guards["admin"] = gourdianguard.GuardConfig{
		IdentityField: "admin_id",
		MaxSessions:   gourdianguard.SingleSession,
	}

	store := gourdianguard.NewMemorySessionStore(5 * time.Minute)
	defer store.Close()

	service, err := gourdianguard.NewService(config, store)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	ctx := context.Background()

	pair, err := service.Issue(ctx, "user", map[string]any{"id": 42, "role": "editor"}, gourdianguard.IssueOptions{ClientType: "web"})
	if err != nil {
		log.Fatalf("Failed to issue tokens: %v", err)
	}
	fmt.Println("token type:", pair.TokenType)
	fmt.Println("expires in:", pair.ExpiresIn)

	claims, err := service.Verify(ctx, "user", pair.AccessToken, gourdianguard.AccessToken)
	if err != nil {
		log.Fatalf("Failed to verify access token: %v", err)
	}
	fmt.Println("role:", claims.Extend["role"])

	// Tokens are bound to the guard they were issued for.
	_, err = service.Verify(ctx, "admin", pair.AccessToken, gourdianguard.AccessToken)
	fmt.Println("admin guard rejects it:", errors.Is(err, gourdianguard.ErrInvalidSignature))

	if err := service.Revoke(ctx, "user", pair.AccessToken, false); err != nil {
		log.Fatalf("Failed to revoke session: %v", err)
	}
	_, err = service.Verify(ctx, "user", pair.AccessToken, gourdianguard.AccessToken)
	fmt.Println("after logout:", gourdianguard.HTTPStatus(err))

	// Output:
	// token type: Bearer
	// expires in: 7200
	// role: editor
	// admin guard rejects it: true
	// after logout: 402
}

func ExampleService_Refresh() {
	config := gourdianguard.DefaultConfig(
		"your-very-secure-access-secret-at-least-32-bytes",
		"your-very-secure-refresh-secret-at-least-32-bytes",
	)

	store := gourdianguard.NewMemorySessionStore(5 * time.Minute)
	defer store.Close()

	service, err := gourdianguard.NewService(config, store)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	ctx := context.Background()
	pair, err := service.Issue(ctx, "user", map[string]any{"id": "alice"}, gourdianguard.IssueOptions{})
	if err != nil {
		log.Fatalf("Failed to issue tokens: %v", err)
	}

	result, err := service.Refresh(ctx, "user", pair.RefreshToken, 15*time.Minute)
	if err != nil {
		log.Fatalf("Failed to refresh: %v", err)
	}

	_, err = service.Verify(ctx, "user", result.AccessToken, gourdianguard.AccessToken)
	fmt.Println("new access token valid:", err == nil)

	_, err = service.Verify(ctx, "user", pair.AccessToken, gourdianguard.AccessToken)
	fmt.Println("old access token expired:", errors.Is(err, gourdianguard.ErrExpired))

	// Output:
	// new access token valid: true
	// old access token expired: true
}
