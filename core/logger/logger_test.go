package logger

import (
	"context"
	"testing"
)

type named struct {
	Nop
	name string
}

func TestFromContext(t *testing.T) {
	fallback := named{name: "fallback"}
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback, got %v", got)
	}
	if _, ok := FromContext(context.Background(), nil).(Nop); !ok {
		t.Fatal("expected Nop when nothing is set")
	}
	run := named{name: "run"}
	ctx := NewContext(context.Background(), run)
	if got := FromContext(ctx, fallback); got != run {
		t.Fatalf("expected context logger, got %v", got)
	}
}
