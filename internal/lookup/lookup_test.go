package lookup

import (
	"errors"
	"testing"
)

func TestParse_EventURL(t *testing.T) {
	q, err := Parse("https://polymarket.com/event/presidential-election-winner-2028?tid=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Kind != KindSlug {
		t.Errorf("expected kind=slug, got %s", q.Kind)
	}
	if q.Slug != "presidential-election-winner-2028" {
		t.Errorf("expected slug=presidential-election-winner-2028, got %s", q.Slug)
	}
}

func TestParse_ID(t *testing.T) {
	tests := []string{
		"0xabc123def4567890",
		"ABCDEF0123456",
		"12345678901",
	}
	for _, raw := range tests {
		q, err := Parse(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if q.Kind != KindID || q.ID != raw {
			t.Errorf("expected id for %q, got kind=%s id=%s", raw, q.Kind, q.ID)
		}
	}
}

func TestParse_ShortHexIsNotID(t *testing.T) {
	q, err := Parse("deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Kind != KindText {
		t.Errorf("expected kind=text for short hex, got %s", q.Kind)
	}
}

func TestParse_Slug(t *testing.T) {
	q, err := Parse("will-bitcoin-hit-100k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Kind != KindSlug || q.Slug != "will-bitcoin-hit-100k" {
		t.Errorf("expected slug, got kind=%s slug=%s", q.Kind, q.Slug)
	}
}

func TestParse_Text(t *testing.T) {
	tests := []string{
		"bitcoin",
		"who wins the super-bowl",
		"  election  ",
	}
	for _, raw := range tests {
		q, err := Parse(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if q.Kind != KindText {
			t.Errorf("expected text for %q, got %s", raw, q.Kind)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		_, err := Parse(raw)
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery for %q, got %v", raw, err)
		}
	}
}
