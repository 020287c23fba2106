package flowz

// Kind identifies an operator in a Flow's chain.
type Kind int

// Operator kinds.
const (
	KindTap Kind = iota + 1
	KindFilter
	KindMap
	KindStep
	KindDebounce
	KindThrottle
	KindLeading
	KindSwitchMap
	KindExhaustMap
	KindDistinct
	KindRetry
	KindPoll
	KindTimeout
	KindCatch
	KindTake
	KindFinally
)

var kindNames = map[Kind]string{
	KindTap:        "tap",
	KindFilter:     "filter",
	KindMap:        "map",
	KindStep:       "step",
	KindDebounce:   "debounce",
	KindThrottle:   "throttle",
	KindLeading:    "leading",
	KindSwitchMap:  "switchMap",
	KindExhaustMap: "exhaustMap",
	KindDistinct:   "distinct",
	KindRetry:      "retry",
	KindPoll:       "poll",
	KindTimeout:    "timeout",
	KindCatch:      "catch",
	KindTake:       "take",
	KindFinally:    "finally",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// wraps reports whether the operator drives the operation that follows it
// instead of transforming the value itself.
func (k Kind) wraps() bool {
	return k == KindRetry || k == KindPoll
}

// wrappable reports whether a Retry or Poll may drive the operator.
func (k Kind) wrappable() bool {
	return k != KindCatch && !k.wraps()
}
