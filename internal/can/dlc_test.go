package can

import "testing"

func TestLengthFromDLC_Total(t *testing.T) {
	want := [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}
	prev := -1
	for dlc := 0; dlc < 16; dlc++ {
		got := LengthFromDLC(uint8(dlc))
		if got != want[dlc] {
			t.Fatalf("LengthFromDLC(%d) = %d, want %d", dlc, got, want[dlc])
		}
		if got <= prev {
			t.Fatalf("table not strictly increasing at dlc=%d", dlc)
		}
		prev = got
	}
}

func TestDLC_RoundTripOnLengthAxis(t *testing.T) {
	// The inverse is total on the length axis: for every code, converting
	// its length back yields a code with the same length. The code itself
	// round-trips too because the table has no duplicate lengths, but the
	// contract is only about lengths.
	for dlc := 0; dlc < 16; dlc++ {
		n := LengthFromDLC(uint8(dlc))
		back := DLCFromLength(n)
		if LengthFromDLC(back) != n {
			t.Fatalf("round trip dlc=%d: length %d -> dlc %d -> length %d",
				dlc, n, back, LengthFromDLC(back))
		}
	}
}

func TestDLCFromLength_RoundsUpNonEncodable(t *testing.T) {
	// Lengths above 8 that are not table entries must round up to the next
	// encodable length; this is the non-bijective half of the codec.
	cases := []struct {
		n    int
		want uint8
	}{
		{9, 9}, {10, 9}, {11, 9}, {12, 9},
		{13, 10}, {15, 10}, {16, 10},
		{17, 11}, {21, 12}, {25, 13}, {31, 13}, {32, 13},
		{33, 14}, {47, 14}, {48, 14},
		{49, 15}, {63, 15}, {64, 15},
	}
	for _, c := range cases {
		if got := DLCFromLength(c.n); got != c.want {
			t.Errorf("DLCFromLength(%d) = %d, want %d", c.n, got, c.want)
		}
		if LengthFromDLC(DLCFromLength(c.n)) < c.n {
			t.Errorf("DLCFromLength(%d) encodes fewer than %d bytes", c.n, c.n)
		}
	}
}

func TestLengthFromDLC_MasksHighBits(t *testing.T) {
	if LengthFromDLC(0x1F) != LengthFromDLC(0x0F) {
		t.Fatal("expected high bits of dlc to be ignored")
	}
}
