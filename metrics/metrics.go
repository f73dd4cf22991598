// Package metrics describes the counters a scheduler exposes and the sample
// format used to read them.
package metrics

// Names of the supported metrics.
const (
	ThreadsCreated = "/sched/threads/created:threads"
	ThreadsReaped  = "/sched/threads/reaped:threads"
	ThreadsLive    = "/sched/threads/live:threads"
	Switches       = "/sched/switches:switches"
	Yields         = "/sched/yields:yields"
	Preemptions    = "/sched/preemptions:preemptions"
	StackBytes     = "/sched/stack/bytes:bytes"
	PreemptPeriod  = "/sched/preempt/period:seconds"
)

type Description struct {
	Name        string
	Description string
	Kind        ValueKind
	Cumulative  bool
}

var descriptions = []Description{
	{Name: ThreadsCreated, Description: "Threads created since Run started.", Kind: KindUint64, Cumulative: true},
	{Name: ThreadsReaped, Description: "Exited threads whose stack and context were released.", Kind: KindUint64, Cumulative: true},
	{Name: ThreadsLive, Description: "Threads that exist and were not reaped yet.", Kind: KindUint64},
	{Name: Switches, Description: "Context switches into a thread.", Kind: KindUint64, Cumulative: true},
	{Name: Yields, Description: "Calls to Yield from a thread, forced ones included.", Kind: KindUint64, Cumulative: true},
	{Name: Preemptions, Description: "Yields forced by the preemption timer.", Kind: KindUint64, Cumulative: true},
	{Name: StackBytes, Description: "Stack bytes currently handed out.", Kind: KindUint64},
	{Name: PreemptPeriod, Description: "Time between two preemption ticks, zero without a timer.", Kind: KindFloat64},
}

// All returns a description of every supported metric.
func All() []Description {
	return append([]Description(nil), descriptions...)
}

// Sample is a single metric value. Name is set by the caller; Value is
// filled in by the reader. Unknown names are left with KindBad.
type Sample struct {
	Name  string
	Value Value
}

type Value struct {
	kind   ValueKind
	scalar uint64
	float  float64
}

// Uint64Value returns a value of kind KindUint64.
func Uint64Value(v uint64) Value {
	return Value{kind: KindUint64, scalar: v}
}

// Float64Value returns a value of kind KindFloat64.
func Float64Value(v float64) Value {
	return Value{kind: KindFloat64, float: v}
}

func (v Value) Float64() float64 {
	if v.kind != KindFloat64 {
		panic("metrics: called Float64 on non-float64 metric value")
	}
	return v.float
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) Uint64() uint64 {
	if v.kind != KindUint64 {
		panic("metrics: called Uint64 on non-uint64 metric value")
	}
	return v.scalar
}

type ValueKind int

const (
	KindBad ValueKind = iota
	KindUint64
	KindFloat64
)
