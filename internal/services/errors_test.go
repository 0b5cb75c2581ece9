package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"docbridge/internal/services"
)

func TestWrapTagsMarkerAndDetail(t *testing.T) {
	cause := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "fetch", "document tree", "doc abc", cause)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected transient marker to survive wrapping")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected original cause to survive wrapping")
	}
	for _, want := range []string{"fetch", "document tree", "doc abc"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error message, got %q", want, err.Error())
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "apply", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("nil marker should default to transient")
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{services.Wrap(services.ErrTransient, "a", "b", "", nil), true},
		{services.Wrap(services.ErrRateLimited, "a", "b", "", nil), true},
		{services.Wrap(services.ErrValidation, "a", "b", "", nil), false},
		{services.Wrap(services.ErrPermission, "a", "b", "", nil), false},
		{services.Wrap(services.ErrNotFound, "a", "b", "", nil), false},
		{services.Wrap(services.ErrPayloadTooLarge, "a", "b", "", nil), false},
		{errors.New("plain network blip"), true},
		{fmt.Errorf("wrapped: %w", services.ErrNotFound), false},
		{nil, false},
	}
	for i, tc := range cases {
		if got := services.IsTransient(tc.err); got != tc.want {
			t.Fatalf("case %d: IsTransient(%v) = %v, want %v", i, tc.err, got, tc.want)
		}
	}
}
