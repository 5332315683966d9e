package ledger

import (
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	half, err := ParseAmount("0.5")
	if err != nil {
		t.Fatal(err)
	}
	if want := new(big.Int).Quo(Wad(1), big.NewInt(2)); half.Cmp(want) != 0 {
		t.Fatalf("0.5 got %s, want %s", half, want)
	}

	thousand, err := ParseAmount("1000")
	if err != nil {
		t.Fatal(err)
	}
	if thousand.Cmp(Wad(1000)) != 0 {
		t.Fatalf("1000 got %s", thousand)
	}

	// precision beyond 18 decimals truncates toward zero
	v, err := ParseAmount("0.0000000000000000019")
	if err != nil {
		t.Fatal(err)
	}
	if v.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("sub-wei precision should truncate, got %s", v)
	}

	if _, err := ParseAmount("-1"); err == nil {
		t.Fatal("negative amounts must be rejected")
	}
	if _, err := ParseAmount("abc"); err == nil {
		t.Fatal("garbage must be rejected")
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatAmount(Wad(2)); got != "2" {
		t.Fatalf("FormatAmount got %q", got)
	}
	half, _ := ParseAmount("0.5")
	if got := FormatAmount(half); got != "0.5" {
		t.Fatalf("FormatAmount got %q", got)
	}
	if got := FormatPrice(Wad(2)); got != "2.0000" {
		t.Fatalf("FormatPrice got %q", got)
	}
	if got := FormatPrice(nil); got != "0.0000" {
		t.Fatalf("FormatPrice(nil) got %q", got)
	}
}
