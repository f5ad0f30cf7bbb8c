package overlay

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator hands out annotation ids of the form
// {prefix}_{epochMillis}_{seq}{rand}. The sequence makes ids unique within a
// process even when many are created in the same millisecond.
type IDGenerator struct {
	mu  sync.Mutex
	now func() time.Time
	seq uint64
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

func (g *IDGenerator) Next(kind Kind) string {
	g.mu.Lock()
	g.seq++
	seq := g.seq
	g.mu.Unlock()

	millis := g.now().UnixMilli()
	return kind.idPrefix() + "_" + strconv.FormatInt(millis, 10) + "_" + strconv.FormatUint(seq, 36) + uuid.NewString()[:4]
}
