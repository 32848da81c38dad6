package mash

import "math/rand"

// pseudoRandom backs $RANDOM, matching the source shell's 0-32767 range.
func pseudoRandom() int {
	return rand.Intn(32768)
}
