package gemini

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scripted generator for development and tests. Replies are handed
// out in order; once exhausted the last reply repeats.
type Mock struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
}

// NewMock returns a Mock that answers with replies in order.
func NewMock(replies ...string) *Mock {
	return &Mock{replies: replies}
}

// FailNext queues err to be returned before the next reply is consumed.
func (m *Mock) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

// Generate records prompt and returns the next scripted reply.
func (m *Mock) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	switch len(m.replies) {
	case 0:
		return "", fmt.Errorf("gemini: mock has no scripted reply")
	case 1:
		return m.replies[0], nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

// Prompts returns a copy of every prompt received so far.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
