package hostidentity

import (
	"context"
	"testing"
)

func TestInitResolvesLocalIPv4(t *testing.T) {
	identity, err := Init(context.Background(), 27017)
	if err != nil {
		t.Fatalf("Init() returned error: %v", err)
	}

	if identity.IP == "" {
		t.Fatal("expected a non-empty resolved IP")
	}

	want := identity.IP + ":27017"
	if identity.Endpoint != want {
		t.Errorf("Endpoint = %q, want %q", identity.Endpoint, want)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	first, err := Init(context.Background(), 27017)
	if err != nil {
		t.Fatalf("first Init() returned error: %v", err)
	}

	second, err := Init(context.Background(), 27017)
	if err != nil {
		t.Fatalf("second Init() returned error: %v", err)
	}

	if first != second {
		t.Errorf("expected repeated Init() calls to agree, got %+v and %+v", first, second)
	}
}
