package can

// CAN FD data length codes. Codes 0..8 map one-to-one to byte lengths 0..8;
// codes 9..15 follow the non-linear FD table.
var dlcToLength = [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// LengthFromDLC maps a 4-bit length code to its payload byte count.
// Total over all 16 codes; the caller guarantees dlc <= 15 (the lookup
// masks the argument rather than failing, matching the hardware which
// only latches four bits).
func LengthFromDLC(dlc uint8) int { return dlcToLength[dlc&0x0F] }

// DLCFromLength maps a payload byte count to the smallest DLC whose
// length is >= n. The mapping is not a bijection above 8 bytes: lengths
// that are not directly encodable round up to the next table entry
// (e.g. 9..12 -> DLC 9). The caller guarantees 0 <= n <= 64.
func DLCFromLength(n int) uint8 {
	if n <= 8 {
		return uint8(n)
	}
	for code := 9; code < 15; code++ {
		if n <= dlcToLength[code] {
			return uint8(code)
		}
	}
	return 15
}
