package lineage

import (
	"context"
	"testing"
)

func TestCaptureRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if got := Capture(ctx); got != (Labels{}) {
		t.Fatalf("Capture on empty context = %+v", got)
	}

	want := Labels{Workstream: "ws-minwage", VariantArm: "arm-topk16"}
	ctx = Restore(ctx, want)
	if got := Capture(ctx); got != want {
		t.Fatalf("Capture = %+v, want %+v", got, want)
	}
}

func TestRestoreEmptyIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if Restore(ctx, Labels{}) != ctx {
		t.Fatal("Restore with empty labels should return the same context")
	}
}
