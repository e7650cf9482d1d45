// Package id generates time-sortable order identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed the ULID entropy source from crypto/rand so IDs are
	// unpredictable. ulid.Monotonic keeps IDs generated within the same
	// millisecond lexicographically increasing, which matters for the
	// orders table index (created_at ordering falls back to ID ordering).
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string for use as an order ID.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// Only possible if entropy is exhausted or time goes backwards.
		panic(err)
	}
	return u.String()
}
