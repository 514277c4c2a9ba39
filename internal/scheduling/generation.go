package scheduling

import "sync/atomic"

type generation struct{ n atomic.Uint64 }

func (g *generation) next() uint64 { return g.n.Add(1) }
