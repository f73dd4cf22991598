package uthread

import "github.com/tinygo-org/uthread/metrics"

// ReadMetrics fills in the values of the given samples. Samples with an
// unknown name get a value of kind metrics.KindBad.
func (s *Scheduler) ReadMetrics(m []metrics.Sample) {
	for i := range m {
		var v metrics.Value
		switch m[i].Name {
		case metrics.ThreadsCreated:
			v = metrics.Uint64Value(s.stats.created)
		case metrics.ThreadsReaped:
			v = metrics.Uint64Value(s.stats.reaped)
		case metrics.ThreadsLive:
			v = metrics.Uint64Value(uint64(len(s.live)))
		case metrics.Switches:
			v = metrics.Uint64Value(s.stats.switches)
		case metrics.Yields:
			v = metrics.Uint64Value(s.stats.yields)
		case metrics.Preemptions:
			v = metrics.Uint64Value(s.stats.preemptions)
		case metrics.StackBytes:
			v = metrics.Uint64Value(uint64(s.stacks.InUse()))
		case metrics.PreemptPeriod:
			v = metrics.Float64Value(s.preempt.Period().Seconds())
		}
		m[i].Value = v
	}
}
