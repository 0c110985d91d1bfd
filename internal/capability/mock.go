package capability

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mock is a scripted capability for tests and offline development. Replies
// are matched by substring against the prompt; unmatched prompts fall
// through to a canned acknowledgement.
type Mock struct {
	mu      sync.Mutex
	rules   []mockRule
	err     error
	Prompts []string // prompts seen, in order
}

type mockRule struct {
	contains string
	reply    string
}

func NewMock() *Mock {
	return &Mock{}
}

// Reply registers a scripted reply for prompts containing the substring.
// Rules are checked in registration order, first match wins.
func (m *Mock) Reply(contains, reply string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: contains, reply: reply})
	return m
}

// Fail makes every subsequent call return the given error.
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *Mock) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if m.err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, m.err)
	}
	for _, r := range m.rules {
		if r.contains != "" && containsFold(prompt, r.contains) {
			return r.reply, nil
		}
	}
	return "I hear you. I'm here with you.", nil
}

func (m *Mock) Classify(ctx context.Context, prompt string, _ []string) (string, error) {
	return m.Generate(ctx, prompt)
}

// CallCount returns how many prompts the mock has served.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
