package cos

import (
	"math/rand"
	"sync"
	"time"

	"github.com/teris-io/shortid"
	"go.uber.org/atomic"
)

// uuidABC is the alphabet used for generated IDs; len(uuidABC) > 0x3f, a
// requirement of GenTie's bit-masking below.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
	rtie    atomic.Int32
)

// InitUUIDGenerator seeds the backend-assigned-name generator. Calling it
// is optional: GenUUID lazily self-seeds from the clock on first use if
// it hasn't been called yet.
func InitUUIDGenerator(seed uint64) {
	sidOnce.Do(func() { sid = shortid.MustNew(4 /*worker*/, uuidABC, seed) })
}

// GenUUID generates a short, human-readable, collision-resistant ID, used
// as the backend-assigned resource name by the reference store
// implementations.
func GenUUID() string {
	InitUUIDGenerator(uint64(time.Now().UnixNano()))
	uuid := sid.MustGenerate()
	var h, t string
	if !isAlpha(uuid[0]) {
		h = string(rune('A' + rand.Int()%26))
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		t = string(rune('a' + rand.Int()%26))
	}
	return h + uuid + t
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// GenTie returns a short tie-breaker string, used to make temp file names
// collision-free across concurrent writers of the same target path.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}
