package reqid

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %d from context, got %d ok=%v", id, got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestWithIDAndParse(t *testing.T) {
	ctx := WithID(context.Background(), 42)
	got, ok := FromContext(ctx)
	if !ok || got != 42 {
		t.Fatalf("expected 42 from context, got %d ok=%v", got, ok)
	}
	if id, ok := Parse(Format(got)); !ok || id != 42 {
		t.Fatalf("expected 42 after format/parse, got %d ok=%v", id, ok)
	}
	if _, ok := Parse("not-a-number"); ok {
		t.Fatalf("unexpected parse success")
	}
}
