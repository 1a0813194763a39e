package scanner

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// File replays broadcasts recorded as "ADDRESS PAYLOAD" lines. The file is
// reopened for every stream so it can be read any number of times.
type File struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	closed bool
}

func NewFile(path string, logger *slog.Logger) *File {
	return &File{
		path:   path,
		logger: orDiscard(logger),
		now:    time.Now,
	}
}

// Data returns the last recorded payload of addr. If the recording has none it
// blocks until ctx is done.
func (f *File) Data(ctx context.Context, addr string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := f.Events(ctx)
	if err != nil {
		return "", err
	}
	var (
		payload string
		found   bool
	)
	for e := range events {
		if strings.EqualFold(e.Addr, addr) {
			payload = e.Payload
			found = true
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !found {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return payload, nil
}

func (f *File) Events(ctx context.Context) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer fh.Close()
		readLines(fh, f.logger, f.now, func(e Event) bool {
			select {
			case ch <- e:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return ch, nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Reader reads "ADDRESS PAYLOAD" lines from a live stream such as the standard
// input of a piped scanning tool. A single read loop is started on first use;
// every Events call subscribes to the broadcasts received from then on and Data
// answers from the latest payload seen per address.
type Reader struct {
	r      io.Reader
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	started bool
	closed  bool
	// eof is closed when the underlying stream is exhausted
	eof    chan struct{}
	latest map[string]string
	subs   map[*subscriber]struct{}
}

type subscriber struct {
	ctx context.Context
	ch  chan Event
}

func NewReader(r io.Reader, logger *slog.Logger) *Reader {
	return &Reader{
		r:      r,
		logger: orDiscard(logger),
		now:    time.Now,
		eof:    make(chan struct{}),
		latest: make(map[string]string),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Data returns the latest payload received from addr. If none has been
// received yet it waits for the next one until ctx is done.
func (r *Reader) Data(ctx context.Context, addr string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	r.start()
	if p, ok := r.latest[strings.ToUpper(addr)]; ok {
		r.mu.Unlock()
		return p, nil
	}
	events := r.subscribe(ctx)
	r.mu.Unlock()
	return nextPayload(ctx, events, addr)
}

func (r *Reader) Events(ctx context.Context) (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	r.start()
	return r.subscribe(ctx), nil
}

// Close ends every open stream. The read loop stops at the next line.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.unsubscribeAll()
	return nil
}

// start must be called with mu held.
func (r *Reader) start() {
	if r.started {
		return
	}
	r.started = true
	go r.loop()
}

// subscribe must be called with mu held.
func (r *Reader) subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event)
	select {
	case <-r.eof:
		close(ch)
		return ch
	default:
	}
	sub := &subscriber{ctx: ctx, ch: ch}
	r.subs[sub] = struct{}{}
	go func() {
		select {
		case <-ctx.Done():
		case <-r.eof:
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[sub]; ok {
			delete(r.subs, sub)
			close(sub.ch)
		}
	}()
	return ch
}

func (r *Reader) unsubscribeAll() {
	for sub := range r.subs {
		delete(r.subs, sub)
		close(sub.ch)
	}
}

func (r *Reader) loop() {
	readLines(r.r, r.logger, r.now, r.broadcast)
	r.mu.Lock()
	defer r.mu.Unlock()
	close(r.eof)
	r.unsubscribeAll()
	r.logger.LogAttrs(context.Background(), slog.LevelDebug, "Broadcast stream ended")
}

// broadcast records e and hands it to every subscriber. A subscriber that does
// not receive is waited for until its context is done.
func (r *Reader) broadcast(e Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.latest[strings.ToUpper(e.Addr)] = e.Payload
	for sub := range r.subs {
		select {
		case sub.ch <- e:
		case <-sub.ctx.Done():
		}
	}
	return true
}

// readLines parses "ADDRESS PAYLOAD" lines and passes them to emit until the
// stream ends or emit returns false.
func readLines(rd io.Reader, logger *slog.Logger, now func() time.Time, emit func(Event) bool) {
	s := bufio.NewScanner(rd)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "Skipping malformed line", slog.String("line", line))
			continue
		}
		e := Event{
			Addr:    fields[0],
			Payload: fields[1],
			Time:    now(),
		}
		if !emit(e) {
			return
		}
	}
	if err := s.Err(); err != nil {
		logger.LogAttrs(context.Background(), slog.LevelError, "Failed to read broadcasts", slog.Any("error", err))
	}
}
