package core

import "ledgersim/config"

// gasMeter accumulates advisory charges. Usage saturates at the limit; a
// zero limit leaves the meter uncapped. Execution is never aborted.
type gasMeter struct {
	schedule config.Gas
	limit    uint64
	used     uint64
}

func newGasMeter(schedule config.Gas, limit uint64) *gasMeter {
	return &gasMeter{schedule: schedule, limit: limit}
}

func (g *gasMeter) charge(amount uint64) {
	if g == nil {
		return
	}
	next := g.used + amount
	if next < g.used {
		next = ^uint64(0)
	}
	if g.limit > 0 && next > g.limit {
		next = g.limit
	}
	g.used = next
}

func (g *gasMeter) chargeArgs(args [][]byte) {
	var size uint64
	for _, arg := range args {
		size += uint64(len(arg))
	}
	g.charge(size * g.schedule.PerArgByte)
}

func (g *gasMeter) left() uint64 {
	if g.limit == 0 {
		return ^uint64(0) - g.used
	}
	return g.limit - g.used
}
