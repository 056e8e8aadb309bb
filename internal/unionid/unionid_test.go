package unionid

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tuples := [][]int64{
		{0},
		{1, 2},
		{1, 2, 3},
		{123, 456789, 0},
		{1 << 40, 1 << 50},
	}
	for _, numbers := range tuples {
		text, err := Encode(numbers...)
		if err != nil {
			t.Fatalf("Encode(%v): %v", numbers, err)
		}
		got, err := Decode(text)
		if err != nil {
			t.Fatalf("Decode(%q): %v", text, err)
		}
		if len(got) != len(numbers) {
			t.Fatalf("roundtrip %v: got %v", numbers, got)
		}
		for i := range numbers {
			if got[i] != numbers[i] {
				t.Errorf("roundtrip %v: got %v", numbers, got)
			}
		}
	}
}

func TestEncodeRejectsNegative(t *testing.T) {
	if _, err := Encode(1, -2); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestEncodeRejectsEmpty(t *testing.T) {
	if _, err := Encode(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeCorruption(t *testing.T) {
	text, err := Encode(42, 99)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flip one character; either the base32 decode or the checksum fails.
	corrupt := "0" + text[1:]
	if corrupt == text {
		corrupt = "1" + text[1:]
	}
	if _, err := Decode(corrupt); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for corrupted id, got %v", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	for _, text := range []string{"", "!", "zz zz", "a"} {
		if _, err := Decode(text); !errors.Is(err, ErrInvalid) {
			t.Errorf("Decode(%q): expected ErrInvalid, got %v", text, err)
		}
	}
}

func TestDecodeFeedID(t *testing.T) {
	feedText, err := Encode(7, 42)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	feedID, err := DecodeFeedID(feedText)
	if err != nil {
		t.Fatalf("DecodeFeedID: %v", err)
	}
	if feedID != 42 {
		t.Errorf("feed union id: got %d, want 42", feedID)
	}

	storyText, err := Encode(7, 42, 13)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	feedID, err = DecodeFeedID(storyText)
	if err != nil {
		t.Fatalf("DecodeFeedID: %v", err)
	}
	if feedID != 42 {
		t.Errorf("story union id: got %d, want 42", feedID)
	}
}

func TestDecodeFeedIDWrongArity(t *testing.T) {
	single, err := Encode(7)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := DecodeFeedID(single); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for single-number id, got %v", err)
	}
}
