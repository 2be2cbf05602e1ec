package wire

import "testing"

func TestEncodeHeaderS1(t *testing.T) {
	cases := []struct {
		index             uint64
		jet, cmd          bool
		want              [2]byte
	}{
		{0, false, false, [2]byte{0x00, 0x00}},
		{3, true, false, [2]byte{0x40, 0x03}},
		{3, true, true, [2]byte{0xC0, 0x03}},
	}
	for _, c := range cases {
		got := EncodeHeader(c.index, c.jet, c.cmd)
		if got != c.want {
			t.Errorf("EncodeHeader(%d,%v,%v) = %x, want %x", c.index, c.jet, c.cmd, got, c.want)
		}
	}
}

func TestEncodeSignalS1(t *testing.T) {
	got := EncodeSignal(SignalACK)
	want := [2]byte{0x80, 0x10}
	if got != want {
		t.Errorf("EncodeSignal(ACK) = %x, want %x", got, want)
	}
}

func TestHeaderRanges(t *testing.T) {
	msg := EncodeHeader(5, false, false)
	jetData := EncodeHeader(5, true, false)
	jetCmd := EncodeHeader(5, true, true)
	ping := EncodeSignal(SignalPING)
	if !IsMessage(DecodeHeader(msg[:])) {
		t.Error("expected message range")
	}
	if !IsJetData(DecodeHeader(jetData[:])) {
		t.Error("expected jet-data range")
	}
	if !IsJetCommand(DecodeHeader(jetCmd[:])) {
		t.Error("expected jet-command range")
	}
	if !IsSignal(DecodeHeader(ping[:])) {
		t.Error("expected signal range")
	}
}

// cyclicDist returns the shorter of the two distances between a and b on the
// uint64 ring (i.e. min(a-b, b-a) computed mod 2^64). Near the reconstructed
// index's lower bound, Unmod's centered candidate can sit just below zero and
// surface as a value near 2^64; cyclicDist is what makes that representation
// and a small literal difference equivalent.
func cyclicDist(a, b uint64) uint64 {
	d := a - b
	if neg := -d; neg < d {
		return neg
	}
	return d
}

func TestUnmodLaw(t *testing.T) {
	const window = uint64(LSBWindow)
	nears := []uint64{0, 1, 8191, 8192, 8193, 16383, 16384, 24575, 24576, 1 << 20, 1<<32 - 1}
	for xx := uint16(0); xx < LSBWindow; xx += 97 {
		for _, near := range nears {
			n := Unmod(xx, near, window)
			if n%window != uint64(xx) {
				t.Fatalf("Unmod(%d,%d) = %d, mod %d != xx", xx, near, n, window)
			}
			if dist := cyclicDist(n, near); dist > window/2 {
				t.Fatalf("Unmod(%d,%d) = %d, distance %d > %d", xx, near, n, dist, window/2)
			}
		}
	}
}

func TestUnmodTieBreaksLow(t *testing.T) {
	// near sits exactly half-way between two candidates; spec requires the
	// lower one.
	near := uint64(8192)
	n := UnmodDefault(0, near)
	if n != 0 {
		t.Errorf("tie-break: Unmod(0, 8192) = %d, want 0 (lower half)", n)
	}
}
