// Package hashing provides the deterministic integer mixing functions the
// simulation uses for reproducible per-tick, per-pixel decisions: which
// direction a row is scanned, which way a powder pixel tie-breaks, whether
// an air-drift or air-resistance roll succeeds. Every function here is a
// pure, stateless function of its inputs so that replaying the same
// (tick, position, world_seed) always produces the same outcome.
package hashing

// Mix32 is a 32-bit avalanche mix (two rounds of multiply-xor-shift), used
// when only a small range of output bits is needed.
func Mix32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

// Mix64 is the 64-bit counterpart to Mix32.
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

func rotl64(x uint64, k uint) uint64 {
	return (x << k) | (x >> (64 - k))
}

// Hash2 mixes two 64-bit inputs into one deterministic 64-bit value.
func Hash2(a, b uint64) uint64 {
	return Mix64(a ^ rotl64(b, 32))
}

// Hash3 mixes three 64-bit inputs.
func Hash3(a, b, c uint64) uint64 {
	return Mix64(a ^ rotl64(b, 21) ^ rotl64(c, 42))
}

// Hash4 mixes four 64-bit inputs.
func Hash4(a, b, c, d uint64) uint64 {
	return Mix64(a ^ rotl64(b, 16) ^ rotl64(c, 32) ^ rotl64(d, 48))
}

// ToFrac64 maps a 64-bit hash into [0, 1).
func ToFrac64(h uint64) float64 {
	return float64(h>>11) / float64(1<<53)
}

// Bool2 returns a deterministic boolean from two 64-bit inputs, used where a
// single bit decides direction (e.g. row-scan order).
func Bool2(a, b uint64) bool {
	return Hash2(a, b)&1 == 0
}

// Chance reports whether a roll of the dice seeded by (a, b) succeeds with
// probability p (p in [0, 1]).
func Chance(a, b uint64, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return ToFrac64(Hash2(a, b)) < p
}

// OneIn returns true with probability 1/n, deterministically from (a, b).
// n == 0 always returns false (the "disabled" convention the reference
// tunables use for air_resistance/air_drift == 0).
func OneIn(a, b uint64, n uint8) bool {
	if n == 0 {
		return false
	}
	return Hash2(a, b)%uint64(n) == 0
}
