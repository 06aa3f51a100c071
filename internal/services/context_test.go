package services_test

import (
	"context"
	"testing"

	"repost/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, 42)
	ctx = services.WithStage(ctx, "transform")
	ctx = services.WithLane(ctx, "background")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ItemIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("item id = %d, %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transform" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
	if lane, ok := services.LaneFromContext(ctx); !ok || lane != "background" {
		t.Fatalf("lane = %q, %v", lane, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("request id = %q, %v", rid, ok)
	}
}

func TestContextEmptyValuesIgnored(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("empty stage should not be stored")
	}
	if _, ok := services.ItemIDFromContext(context.Background()); ok {
		t.Fatal("missing item id should report absent")
	}
}
