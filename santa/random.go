/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package santa

import (
	crand "crypto/rand"
	"math/rand/v2"
)

// Source picks an index in [0, n). Game only calls it while holding its lock.
type Source interface {
	IntN(n int) int
}

// newSource returns a ChaCha8 generator seeded from crypto/rand.
func newSource() Source {
	var seed [32]byte
	_, _ = crand.Read(seed[:])

	return rand.New(rand.NewChaCha8(seed))
}
