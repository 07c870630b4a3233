package irc

import (
	"strconv"
	"sync/atomic"
	"time"
)

// labelGenerator produces outbound labeled-response tokens. A clock reading
// alone can collide under rapid sends on coarse clocks, so the token is a
// per-session epoch joined with an atomic counter.
type labelGenerator struct {
	epoch string
	seq   atomic.Uint64
}

func newLabelGenerator() *labelGenerator {
	return &labelGenerator{
		epoch: strconv.FormatInt(time.Now().UnixNano(), 36),
	}
}

func (g *labelGenerator) next() string {
	return g.epoch + "." + strconv.FormatUint(g.seq.Add(1), 36)
}
