package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Simulated is an in-process settlement network. Submissions are idempotent
// per reference. Networks running in async mode acknowledge with
// OutcomeAccepted and settle when Confirm is called.
type Simulated struct {
	name     Network
	prefix   string
	async    bool
	latency  time.Duration
	limit    decimal.Decimal
	validate func(methodRef string) error

	mu          sync.Mutex
	submissions map[string]Result
	scripted    []error
}

// SimOption customises a simulated network.
type SimOption func(*Simulated)

// WithLatency delays every response. The submission is recorded before the
// delay, so a caller that gives up early leaves a submission behind.
func WithLatency(d time.Duration) SimOption {
	return func(s *Simulated) { s.latency = d }
}

// WithLimit declines submissions above limit.
func WithLimit(limit decimal.Decimal) SimOption {
	return func(s *Simulated) { s.limit = limit }
}

// WithFailures makes the next len(errs) submissions fail with errs in order.
func WithFailures(errs ...error) SimOption {
	return func(s *Simulated) { s.scripted = append(s.scripted, errs...) }
}

// NewNetworkA simulates a synchronous bank-transfer style network.
func NewNetworkA(opts ...SimOption) *Simulated {
	return newSimulated(NetworkA, "NA", false, opts)
}

// NewNetworkB simulates a mobile-money style network that confirms
// asynchronously.
func NewNetworkB(opts ...SimOption) *Simulated {
	return newSimulated(NetworkB, "NB", true, opts)
}

// NewNetworkC simulates a synchronous card network. Card method references
// ("card:<pan>") are checked for a plausible PAN.
func NewNetworkC(opts ...SimOption) *Simulated {
	s := newSimulated(NetworkC, "NC", false, opts)
	s.validate = validateCardMethod
	return s
}

func newSimulated(name Network, prefix string, async bool, opts []SimOption) *Simulated {
	s := &Simulated{
		name:        name,
		prefix:      prefix,
		async:       async,
		submissions: make(map[string]Result),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name reports the network identifier.
func (s *Simulated) Name() Network { return s.name }

// Fail queues errors for upcoming submissions.
func (s *Simulated) Fail(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted = append(s.scripted, errs...)
}

// Submit takes a settlement request.
func (s *Simulated) Submit(ctx context.Context, req Request) (Result, error) {
	res, err := s.record(req)
	if err != nil {
		return Result{}, err
	}
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	return res, nil
}

func (s *Simulated) record(req Request) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.submissions[req.Reference]; ok {
		return prior, nil
	}
	if len(s.scripted) > 0 {
		err := s.scripted[0]
		s.scripted = s.scripted[1:]
		return Result{}, err
	}
	if strings.TrimSpace(req.MethodRef) == "" {
		return Result{}, &Error{Network: s.name, Reason: "missing method reference", Declined: true}
	}
	if s.validate != nil {
		if err := s.validate(req.MethodRef); err != nil {
			return Result{}, &Error{Network: s.name, Reason: err.Error(), Declined: true}
		}
	}
	if s.limit.IsPositive() && req.Amount.GreaterThan(s.limit) {
		return Result{}, &Error{Network: s.name, Reason: "amount exceeds network limit", Declined: true}
	}

	res := Result{
		Success:      true,
		Outcome:      OutcomeSettled,
		ProcessorRef: s.prefix + "-" + ulid.Make().String(),
		Network:      s.name,
	}
	if s.async {
		res.Outcome = OutcomeAccepted
	}
	s.submissions[req.Reference] = res
	return res, nil
}

// Status returns the current state of the submission for reference.
func (s *Simulated) Status(_ context.Context, reference string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.submissions[reference]
	if !ok {
		return Result{}, ErrReferenceNotFound
	}
	return res, nil
}

// Confirm settles an accepted submission, as the network's back office would.
func (s *Simulated) Confirm(reference string, success bool, reason string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.submissions[reference]
	if !ok {
		return Result{}, ErrReferenceNotFound
	}
	if res.Outcome != OutcomeAccepted {
		return res, nil
	}
	if success {
		res.Outcome = OutcomeSettled
	} else {
		res.Outcome = OutcomeFailed
		res.Success = false
		res.Reason = reason
	}
	s.submissions[reference] = res
	return res, nil
}

func validateCardMethod(methodRef string) error {
	pan, ok := strings.CutPrefix(methodRef, "card:")
	if !ok {
		return nil
	}
	digits := strings.ReplaceAll(pan, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return fmt.Errorf("card number must be between 12 and 19 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("card number must be numeric")
		}
	}
	return nil
}
