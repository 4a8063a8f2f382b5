package can

import "testing"

func TestFilter_Match(t *testing.T) {
	cases := []struct {
		name string
		f    Filter
		id   uint32
		want bool
	}{
		{"exact", Filter{ID: 0x100, Mask: EFFMask}, 0x100, true},
		{"exact_miss", Filter{ID: 0x100, Mask: EFFMask}, 0x101, false},
		{"open_mask", Filter{ID: 0x0, Mask: 0x0}, 0x1ABCDEF0, true},
		{"range", Filter{ID: 0x1200, Mask: 0x1FFFFF00}, 0x12FF, true},
		{"range_miss", Filter{ID: 0x1200, Mask: 0x1FFFFF00}, 0x13FF, false},
		{"ignores_flag_bits", Filter{ID: 0x100, Mask: 0xFFFFFFFF}, 0x80000100 & EFFMask, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.f.Match(c.id); got != c.want {
				t.Fatalf("Match(%#x) = %v, want %v", c.id, got, c.want)
			}
		})
	}
}
