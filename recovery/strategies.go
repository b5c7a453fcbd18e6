package recovery

import (
	"fmt"
	"sync"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy repairs whatever it can and keeps the errors it saw.
type LenientStrategy struct {
	mu     sync.Mutex
	errors []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	return ActionFix
}

// Errors returns a copy of the errors reported so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
