//go:build !manifold

package manifold

import (
	"errors"
	"strings"
	"testing"
)

func TestNewReturnsError(t *testing.T) {
	k, err := New()
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if k != nil {
		t.Error("expected nil kernel from stub")
	}
	if !strings.Contains(err.Error(), "-tags=manifold") {
		t.Errorf("error should mention -tags=manifold, got: %v", err)
	}
}
