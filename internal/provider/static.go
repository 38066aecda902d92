package provider

import (
	"context"
	"sync"
)

// Static replies with canned text. Replies are consumed in order and the
// last one repeats. It backs the offline CLI mode and tests.
type Static struct {
	mu      sync.Mutex
	replies []string
	next    int
	err     error
	calls   []Request

	// InputTokens and OutputTokens are reported as usage. Zero means the
	// backend reports no usage.
	InputTokens  int
	OutputTokens int
	// Cost is reported per call.
	Cost float64
}

// NewStatic returns a Static replying with replies.
func NewStatic(replies ...string) *Static {
	return &Static{replies: replies}
}

// NewFailing returns a Static failing every call with err.
func NewFailing(err error) *Static {
	return &Static{err: err}
}

// Invoke records req and returns the next reply.
func (s *Static) Invoke(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, *req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}

	text := ""
	if len(s.replies) > 0 {
		text = s.replies[s.next]
		if s.next < len(s.replies)-1 {
			s.next++
		}
	}
	return &Response{
		Text:         text,
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		Cost:         s.Cost,
		Model:        req.Model,
		StopReason:   "end_turn",
	}, nil
}

// Calls returns copies of the requests received so far.
func (s *Static) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of requests received.
func (s *Static) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// LastCall returns the most recent request, or nil.
func (s *Static) LastCall() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	r := s.calls[len(s.calls)-1]
	return &r
}

var _ Provider = (*Static)(nil)
