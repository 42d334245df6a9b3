// Package ids mints the identifiers the AInstein API uses for database
// keys and request correlation. ULIDs encode their creation timestamp, so
// rows and log lines sort in arrival order without a separate column.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var generator = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{
	entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
}

// New returns a fresh ULID. Values minted within one process are strictly
// increasing even inside the same millisecond.
func New() string {
	generator.Lock()
	defer generator.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), generator.entropy).String()
}
