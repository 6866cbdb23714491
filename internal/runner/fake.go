package runner

import (
	"context"
	"strings"
)

// Fake is a scripted Runner for tests. Responses are keyed by the full
// command line (program and arguments joined by single spaces). Unscripted
// invocations return ExitNotFound, as if the program did not exist.
type Fake struct {
	responses map[string]Result

	// Calls records every invocation in order.
	Calls []string
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{responses: make(map[string]Result)}
}

// On scripts the Result returned for the given command line.
func (f *Fake) On(result Result, name string, args ...string) *Fake {
	f.responses[key(name, args)] = result
	return f
}

// OnOutput scripts a successful invocation that prints stdout.
func (f *Fake) OnOutput(stdout string, name string, args ...string) *Fake {
	return f.On(Result{Code: 0, Stdout: []byte(stdout)}, name, args...)
}

// OnFailure scripts an invocation that exits with code 1.
func (f *Fake) OnFailure(name string, args ...string) *Fake {
	return f.On(Result{Code: 1, Stderr: []byte("failed")}, name, args...)
}

// Run implements Runner.
func (f *Fake) Run(_ context.Context, name string, args ...string) Result {
	k := key(name, args)
	f.Calls = append(f.Calls, k)
	if r, ok := f.responses[k]; ok {
		return r
	}
	return Result{Code: ExitNotFound, Stderr: []byte("executable file not found in $PATH")}
}

// Called reports how many times the given command line was run.
func (f *Fake) Called(name string, args ...string) int {
	k := key(name, args)
	n := 0
	for _, c := range f.Calls {
		if c == k {
			n++
		}
	}
	return n
}

func key(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
