package engine

import "fmt"

// invariant panics when the matching algorithm has broken one of its own
// rules. These conditions can never be caused by caller input that passed
// order validation; a corrupted book must not be used further, so they are
// not surfaced as recoverable errors.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic("orderbook invariant violated: " + fmt.Sprintf(format, args...))
	}
}
