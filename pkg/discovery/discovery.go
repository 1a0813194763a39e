// Package discovery aggregates RuuviTag broadcasts from many devices.
package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
	"github.com/niktheblak/ruuvitag-sensor/pkg/scanner"
)

// Source streams broadcasts in arrival order.
type Source interface {
	Events(ctx context.Context) (<-chan scanner.Event, error)
}

type Options struct {
	// Filter restricts the run to these addresses; other broadcasts are ignored entirely
	Filter []string
	// StopAfter ends the run once this many distinct addresses have a decodable payload
	StopAfter int
	// Timeout ends the run after the given duration
	Timeout time.Duration
	// OnError receives failures in push mode: undecodable payloads, invalid
	// addresses under their raw form and filtered addresses never reported
	OnError func(addr ruuvitag.Address, err error)
	Logger  *slog.Logger
}

// Result of one discovery run. An address appears in either Measurements or
// Errors, never both.
type Result struct {
	Measurements map[ruuvitag.Address]ruuvitag.Measurement
	Errors       map[ruuvitag.Address]error
}

// Addresses returns the successfully decoded addresses in sorted order.
func (r Result) Addresses() []ruuvitag.Address {
	addrs := make([]ruuvitag.Address, 0, len(r.Measurements))
	for a := range r.Measurements {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	filter map[ruuvitag.Address]struct{}
	events <-chan scanner.Event
	logger *slog.Logger
	// invalid receives broadcasts whose address does not parse when no filter is set
	invalid func(raw string, err error)
}

func start(ctx context.Context, src Source, opts Options) (*run, error) {
	filter, err := parseFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	events, err := src.Events(runCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	return &run{
		ctx:    runCtx,
		cancel: cancel,
		filter: filter,
		events: events,
		logger: logger,
	}, nil
}

// next returns the next broadcast of an accepted address. ok is false when the
// run is over because the stream ended or the time budget ran out.
func (r *run) next() (addr ruuvitag.Address, e scanner.Event, ok bool) {
	for {
		select {
		case <-r.ctx.Done():
			return "", scanner.Event{}, false
		case e, ok = <-r.events:
			if !ok {
				return "", scanner.Event{}, false
			}
			a, err := ruuvitag.ParseAddress(e.Addr)
			if err != nil {
				r.logger.LogAttrs(r.ctx, slog.LevelDebug, "Invalid broadcast address", slog.String("addr", e.Addr), slog.Any("error", err))
				if r.filter == nil && r.invalid != nil {
					r.invalid(e.Addr, err)
				}
				continue
			}
			if r.filter != nil {
				if _, accepted := r.filter[a]; !accepted {
					continue
				}
			}
			return a, e, true
		}
	}
}

// Collect consumes broadcasts until a stop condition triggers and returns the
// last broadcast seen from every accepted address. Earlier broadcasts of the
// same address are discarded. The run stops when StopAfter addresses have a
// decodable latest payload, when every filtered address has been seen, when
// Timeout elapses or when the stream ends. If ctx itself is cancelled its
// error is returned.
func Collect(ctx context.Context, src Source, opts Options) (map[ruuvitag.Address]scanner.Event, error) {
	latest, _, err := collect(ctx, src, opts)
	return latest, err
}

// collect is Collect that also returns the broadcasts whose address is invalid.
func collect(ctx context.Context, src Source, opts Options) (map[ruuvitag.Address]scanner.Event, map[ruuvitag.Address]error, error) {
	r, err := start(ctx, src, opts)
	if err != nil {
		return nil, nil, err
	}
	defer r.cancel()
	invalid := make(map[ruuvitag.Address]error)
	r.invalid = func(raw string, err error) {
		invalid[ruuvitag.Address(raw)] = err
	}
	latest := make(map[ruuvitag.Address]scanner.Event)
	decodable := make(map[ruuvitag.Address]bool)
	valid := 0
	for {
		addr, e, ok := r.next()
		if !ok {
			break
		}
		latest[addr] = e
		_, decoded := ruuvitag.TryDecode(e.Payload)
		if decoded != decodable[addr] {
			if decoded {
				valid++
			} else {
				valid--
			}
			decodable[addr] = decoded
		}
		if opts.StopAfter > 0 && valid >= opts.StopAfter {
			break
		}
		if r.filter != nil && len(latest) == len(r.filter) {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "Collected broadcasts", slog.Int("addresses", len(latest)), slog.Int("decodable", valid), slog.Int("invalid", len(invalid)))
	return latest, invalid, nil
}

// Discover collects broadcasts like Collect and decodes the retained payload of
// every address. Addresses whose payload fails to decode, filtered addresses
// that were never seen and invalid addresses (under their raw form) are
// reported in Result.Errors.
func Discover(ctx context.Context, src Source, opts Options) (Result, error) {
	filter, err := parseFilter(opts.Filter)
	if err != nil {
		return Result{}, err
	}
	latest, invalid, err := collect(ctx, src, opts)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Measurements: make(map[ruuvitag.Address]ruuvitag.Measurement),
		Errors:       invalid,
	}
	for addr, e := range latest {
		m, err := ruuvitag.Decode(e.Payload)
		if err != nil {
			res.Errors[addr] = err
			continue
		}
		a := addr.String()
		m.Addr = &a
		m.Timestamp = e.Time
		res.Measurements[addr] = m
	}
	for addr := range filter {
		if _, ok := latest[addr]; !ok {
			res.Errors[addr] = fmt.Errorf("%w: no broadcast from %s", ruuvitag.ErrSensorTimeout, addr)
		}
	}
	return res, nil
}

// Find returns the addresses of all RuuviTags heard during the run.
func Find(ctx context.Context, src Source, opts Options) ([]ruuvitag.Address, error) {
	res, err := Discover(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	return res.Addresses(), nil
}

// DataFor returns the latest measurements of the given addresses. Addresses
// that were not heard or failed to decode are left out.
func DataFor(ctx context.Context, src Source, addrs []string, opts Options) (map[ruuvitag.Address]ruuvitag.Measurement, error) {
	opts.Filter = addrs
	res, err := Discover(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	return res.Measurements, nil
}

// Stream invokes fn with the first successfully decoded measurement of every
// address. Later broadcasts of an already reported address are ignored. Stream
// returns nil when the stream ends, when Timeout elapses, when StopAfter
// addresses have been reported or when every filtered address has been
// reported. Filtered addresses left unreported are passed to OnError as
// ErrSensorTimeout. If ctx itself is cancelled its error is returned.
func Stream(ctx context.Context, src Source, opts Options, fn func(addr ruuvitag.Address, m ruuvitag.Measurement)) error {
	r, err := start(ctx, src, opts)
	if err != nil {
		return err
	}
	defer r.cancel()
	if opts.OnError != nil {
		r.invalid = func(raw string, err error) {
			opts.OnError(ruuvitag.Address(raw), err)
		}
	}
	reported := make(map[ruuvitag.Address]struct{})
	for {
		addr, e, ok := r.next()
		if !ok {
			break
		}
		if _, done := reported[addr]; done {
			continue
		}
		m, err := ruuvitag.Decode(e.Payload)
		if err != nil {
			if opts.OnError != nil {
				opts.OnError(addr, err)
			}
			continue
		}
		a := addr.String()
		m.Addr = &a
		m.Timestamp = e.Time
		reported[addr] = struct{}{}
		fn(addr, m)
		if opts.StopAfter > 0 && len(reported) >= opts.StopAfter {
			break
		}
		if r.filter != nil && len(reported) == len(r.filter) {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.OnError != nil {
		for _, addr := range sortedFilter(r.filter) {
			if _, ok := reported[addr]; !ok {
				opts.OnError(addr, fmt.Errorf("%w: no broadcast from %s", ruuvitag.ErrSensorTimeout, addr))
			}
		}
	}
	return nil
}

func sortedFilter(filter map[ruuvitag.Address]struct{}) []ruuvitag.Address {
	addrs := make([]ruuvitag.Address, 0, len(filter))
	for a := range filter {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func parseFilter(addrs []string) (map[ruuvitag.Address]struct{}, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	filter := make(map[ruuvitag.Address]struct{}, len(addrs))
	for _, s := range addrs {
		a, err := ruuvitag.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		filter[a] = struct{}{}
	}
	return filter, nil
}
