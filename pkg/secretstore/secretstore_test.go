package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(OpenOptions{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetString(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetString("k", "v"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	got, found, err := s.GetString("k")
	if err != nil || !found || got != "v" {
		t.Fatalf("GetString = %q, %v, %v", got, found, err)
	}
	if _, found, _ := s.GetString("missing"); found {
		t.Fatal("missing key reported found")
	}
}

func TestOperatorKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	// Well-formed secp256k1 key (test fixture, never funded).
	keyHex := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	if err := s.SetOperatorKeyHex(keyHex); err != nil {
		t.Fatalf("SetOperatorKeyHex: %v", err)
	}
	got, found, err := s.OperatorKeyHex()
	if err != nil || !found || got != keyHex {
		t.Fatalf("OperatorKeyHex = %q, %v, %v", got, found, err)
	}
}

func TestSetOperatorKeyRejectsGarbage(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetOperatorKeyHex("not-a-key"); err == nil {
		t.Fatal("garbage key accepted")
	}
}

func TestParseKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	b, err := ParseKey(hexKey)
	if err != nil || len(b) != 32 {
		t.Fatalf("ParseKey(hex) = %d bytes, %v", len(b), err)
	}
	if b, err = ParseKey("0x" + hexKey); err != nil || len(b) != 32 {
		t.Fatalf("ParseKey(0x hex) = %d bytes, %v", len(b), err)
	}
	b64 := base64.StdEncoding.EncodeToString(make([]byte, 32))
	if b, err = ParseKey(b64); err != nil || len(b) != 32 {
		t.Fatalf("ParseKey(base64) = %d bytes, %v", len(b), err)
	}
	if b, err = ParseKey(""); err != nil || b != nil {
		t.Fatalf("ParseKey(empty) = %v, %v", b, err)
	}
	if _, err = ParseKey("abcd"); err == nil {
		t.Fatal("short key accepted")
	}
}
