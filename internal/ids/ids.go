package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Opaque returns a 32-character hex identifier drawn from a collision-resistant
// random source. Used for token ids and EC2 access/secret material, which must
// not be guessable or sortable.
func Opaque() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
