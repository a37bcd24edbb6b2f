package protocol

import "fmt"

// guarantee enforces a programming invariant. Violations are bugs in the
// caller (the routing layer handed us an operation outside its contract),
// not user errors, so they panic.
func guarantee(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("protocol: "+format, args...))
	}
}
