package reasoning

import (
	"context"
	"fmt"
	"sync"
)

// StaticCollaborator is a deterministic Collaborator for tests and the
// CLI's dry-run mode. It records every request it receives.
type StaticCollaborator struct {
	mu       sync.Mutex
	requests []Request

	// Message overrides the canned reply when non-nil (a nil pointer and
	// an empty string are different replies on purpose).
	Message *string
	// Err, when set, is returned from every Generate call.
	Err error
}

// Generate returns a canned transmission derived from the request.
func (s *StaticCollaborator) Generate(_ context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.Err != nil {
		return Response{}, s.Err
	}
	if s.Message != nil {
		return Response{Message: *s.Message, Metadata: map[string]string{"source": "static"}}, nil
	}
	msg := fmt.Sprintf("[%s] %s", req.Airport.ICAO, req.Phase.Label)
	if req.Trigger == TriggerPilotSpoke {
		msg = fmt.Sprintf("[%s] roger", req.Airport.ICAO)
	}
	return Response{Message: msg, Metadata: map[string]string{"source": "static"}}, nil
}

// Calls returns how many times Generate was invoked.
func (s *StaticCollaborator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// LastRequest returns the most recent request, or false if none.
func (s *StaticCollaborator) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}
