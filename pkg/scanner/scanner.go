// Package scanner defines the boundary to the Bluetooth scanning layer and
// provides adapters that replay recorded broadcasts.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var (
	ErrClosed        = errors.New("scanner closed")
	ErrUnknownSource = errors.New("unknown scanner source")
)

// Event is one received broadcast.
type Event struct {
	Addr    string
	Payload string
	Time    time.Time
}

// Scanner yields raw hexadecimal broadcast payloads.
type Scanner interface {
	// Data returns the latest payload of addr, blocking until one is available or ctx is done.
	Data(ctx context.Context, addr string) (string, error)
	// Events streams broadcasts in arrival order. The channel is closed when
	// the source is exhausted or ctx is done. Every call starts a new stream;
	// live sources deliver the broadcasts received after the call.
	Events(ctx context.Context) (<-chan Event, error)
	io.Closer
}

type Config struct {
	// Source is a path to a file of "ADDRESS PAYLOAD" lines or "-" for stdin
	Source string
	Logger *slog.Logger
}

// Open acquires a scanner for the configured source. The caller must Close it.
func Open(cfg Config) (Scanner, error) {
	switch cfg.Source {
	case "":
		return nil, fmt.Errorf("%w: source is required", ErrUnknownSource)
	case "-":
		return NewReader(os.Stdin, cfg.Logger), nil
	default:
		if _, err := os.Stat(cfg.Source); err != nil {
			return nil, err
		}
		return NewFile(cfg.Source, cfg.Logger), nil
	}
}

// nextPayload waits for the next broadcast of addr. If the stream ends before
// addr is seen it blocks until ctx is done, like a radio that never hears the device.
func nextPayload(ctx context.Context, events <-chan Event, addr string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case e, ok := <-events:
			if !ok {
				<-ctx.Done()
				return "", ctx.Err()
			}
			if strings.EqualFold(e.Addr, addr) {
				return e.Payload, nil
			}
		}
	}
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
