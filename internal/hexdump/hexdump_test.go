package hexdump

import "testing"

func TestPrintableHexShortRunIsHex(t *testing.T) {
	got := PrintableHex([]byte("ab"))
	want := "61 62"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPrintableHexLongRunIsQuoted(t *testing.T) {
	got := PrintableHex([]byte("hello"))
	want := "'hello'"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPrintableHexMixed(t *testing.T) {
	data := append([]byte{0x00, 0x01}, []byte("test")...)
	data = append(data, 0xFF)
	got := PrintableHex(data)
	want := "00 01 'test' FF"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPrintableHexExcludesQuoteFromRuns(t *testing.T) {
	got := PrintableHex([]byte("abc'defg"))
	want := "61 62 63 27 'defg'"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
