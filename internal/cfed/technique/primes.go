package technique

// primes returns the first n primes starting at 5. The sequence starts at 5
// so that YACCA's entry constant 4 turns the setup value 1 into the first
// block's signature.
func primes(n int) []uint32 {
	out := make([]uint32, 0, n)
	for c := uint32(5); len(out) < n; c += 2 {
		prime := true
		for _, p := range out {
			if p*p > c {
				break
			}
			if c%p == 0 {
				prime = false
				break
			}
		}
		// 3 is not in the list but still divides candidates.
		if prime && c%3 != 0 {
			out = append(out, c)
		}
	}
	return out
}
