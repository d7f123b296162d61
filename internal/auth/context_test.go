package auth

import (
	"context"
	"testing"
)

func TestWithIdentityAndFromContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{Subject: "abc", New: true})
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected Identity in context")
	}
	if got.Subject != "abc" {
		t.Errorf("Subject = %q, want %q", got.Subject, "abc")
	}
	if !got.New {
		t.Error("New = false, want true")
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected false for missing Identity")
	}
}

func TestSubjectID(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{Subject: "s-42"})
	if got := SubjectID(ctx); got != "s-42" {
		t.Errorf("SubjectID = %q, want %q", got, "s-42")
	}
}

func TestSubjectIDMissing(t *testing.T) {
	if got := SubjectID(context.Background()); got != "" {
		t.Errorf("SubjectID = %q, want empty", got)
	}
}
