package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// Routing selects how the dispatcher chooses a network.
type Routing string

const (
	RoutingRoundRobin Routing = "round_robin"
	RoutingFixed      Routing = "fixed"
)

// Config configures a Dispatcher.
type Config struct {
	Routing Routing
	// Default is the network used by fixed routing.
	Default Network
	// Timeout bounds every network call.
	Timeout time.Duration
	// BreakerFailures trips a network's breaker after that many consecutive
	// transport failures.
	BreakerFailures uint32
	// BreakerCooldown is how long a tripped breaker stays open.
	BreakerCooldown time.Duration
}

// Dispatcher routes settlement requests across registered networks. Each
// network sits behind its own circuit breaker.
type Dispatcher struct {
	cfg      Config
	order    []Network
	gateways map[Network]Gateway
	breakers map[Network]*gobreaker.CircuitBreaker
	next     atomic.Uint64
	logger   *slog.Logger
}

// NewDispatcher registers the gateways in the given order.
func NewDispatcher(cfg Config, logger *slog.Logger, gateways ...Gateway) (*Dispatcher, error) {
	if len(gateways) == 0 {
		return nil, fmt.Errorf("at least one settlement network is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.Routing == "" {
		cfg.Routing = RoutingRoundRobin
	}

	d := &Dispatcher{
		cfg:      cfg,
		gateways: make(map[Network]Gateway, len(gateways)),
		breakers: make(map[Network]*gobreaker.CircuitBreaker, len(gateways)),
		logger:   logger,
	}
	for _, gw := range gateways {
		name := gw.Name()
		if _, dup := d.gateways[name]; dup {
			return nil, fmt.Errorf("settlement network %s registered twice", name)
		}
		d.order = append(d.order, name)
		d.gateways[name] = gw
		d.breakers[name] = d.newBreaker(name)
	}

	if cfg.Routing == RoutingFixed {
		if cfg.Default == "" {
			d.cfg.Default = d.order[0]
		} else if _, ok := d.gateways[cfg.Default]; !ok {
			return nil, fmt.Errorf("default network %s: %w", cfg.Default, ErrUnknownNetwork)
		}
	}
	return d, nil
}

func (d *Dispatcher) newBreaker(name Network) *gobreaker.CircuitBreaker {
	failures := d.cfg.BreakerFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "settlement-" + string(name),
		MaxRequests: 1,
		Timeout:     d.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var perr *Error
			return err == nil || (errors.As(err, &perr) && perr.Declined)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			d.logger.Warn("settlement network breaker state changed",
				slog.String("network", string(name)),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
}

// Networks lists registered networks in registration order.
func (d *Dispatcher) Networks() []Network {
	out := make([]Network, len(d.order))
	copy(out, d.order)
	return out
}

// Select picks the network for the next settlement.
func (d *Dispatcher) Select() Network {
	if d.cfg.Routing == RoutingFixed {
		return d.cfg.Default
	}
	n := d.next.Add(1) - 1
	return d.order[n%uint64(len(d.order))]
}

// Settle submits req to network. A *Error describes a definite failure;
// ErrIndeterminate means the outcome is unknown and must be reconciled later.
// A successful Result with OutcomeAccepted only means the network took the
// request.
func (d *Dispatcher) Settle(ctx context.Context, network Network, req Request) (Result, error) {
	gw, ok := d.gateways[network]
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", network, ErrUnknownNetwork)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	out, err := d.breakers[network].Execute(func() (any, error) {
		return d.submit(callCtx, gw, req)
	})
	if err != nil {
		return Result{Network: network}, d.normalize(network, req.Reference, err)
	}

	res := out.(Result)
	res.Network = network
	res.Success = true
	d.logger.Info("settlement submitted",
		slog.String("network", string(network)),
		slog.String("reference", req.Reference),
		slog.String("processor_ref", res.ProcessorRef),
		slog.String("outcome", string(res.Outcome)))
	return res, nil
}

// submit turns a gateway panic into a definite failure so the caller can
// release whatever it reserved for the request.
func (d *Dispatcher) submit(ctx context.Context, gw Gateway, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("gateway panicked",
				slog.String("network", string(gw.Name())),
				slog.String("reference", req.Reference),
				slog.Any("panic", r))
			res, err = Result{}, &Error{Network: gw.Name(), Reason: fmt.Sprintf("gateway panic: %v", r)}
		}
	}()
	return gw.Submit(ctx, req)
}

// Status asks network for the current state of a prior submission.
func (d *Dispatcher) Status(ctx context.Context, network Network, reference string) (Result, error) {
	gw, ok := d.gateways[network]
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", network, ErrUnknownNetwork)
	}
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	res, err := gw.Status(callCtx, reference)
	if err != nil {
		if errors.Is(err, ErrReferenceNotFound) {
			return Result{Network: network}, err
		}
		return Result{Network: network}, d.normalize(network, reference, err)
	}
	res.Network = network
	res.Success = res.Outcome != OutcomeFailed
	return res, nil
}

func (d *Dispatcher) normalize(network Network, reference string, err error) error {
	var perr *Error
	switch {
	case errors.As(err, &perr):
		if perr.Network == "" {
			perr.Network = network
		}
		d.logger.Warn("settlement failed",
			slog.String("network", string(network)),
			slog.String("reference", reference),
			slog.String("reason", perr.Reason))
		return perr
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &Error{Network: network, Reason: "network unavailable"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		d.logger.Warn("settlement outcome indeterminate",
			slog.String("network", string(network)),
			slog.String("reference", reference),
			slog.Any("error", err))
		return fmt.Errorf("%s: %w", network, ErrIndeterminate)
	default:
		return &Error{Network: network, Reason: err.Error()}
	}
}
