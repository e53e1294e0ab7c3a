package exttool

import (
	"context"
	"strings"
	"sync"
)

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
}

func (c Call) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Recorder is a Runner that records calls instead of running them. If Do is
// set it is invoked for each call and its error returned, so tests can create
// the files a real program would write.
type Recorder struct {
	Do func(name string, args []string) error

	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) Run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if r.Do != nil {
		return r.Do(name, args)
	}
	return nil
}

// Calls returns the recorded invocations in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
