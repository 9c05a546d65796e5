package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewCorrelationID returns a ULID string. Successive calls within one process
// yield strictly increasing values, so ids also order messages by send time.
func NewCorrelationID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewInstanceID returns a random identifier for a microservice instance.
func NewInstanceID() string {
	return uuid.NewString()
}
