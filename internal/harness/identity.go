package harness

import (
	"fmt"

	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

// Identity names one invocation and every artifact it produces. It is built
// from the harness's evaluation counter and a digest of the point's encoded
// values; wall-clock time plays no part, so rapid or concurrent evaluations
// of the same point still receive distinct identities.
type Identity struct {
	Seq    uint64
	Digest string
}

func (id Identity) String() string {
	return fmt.Sprintf("eval-%06d-%s", id.Seq, id.Digest[:12])
}

// allocator hands out identities. Safe for concurrent use.
type allocator struct {
	seq utils.Sequence
}

func (a *allocator) next(encoded []float64) Identity {
	return Identity{Seq: a.seq.Next(), Digest: utils.VectorDigest(encoded)}
}
