package ruuvitag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DataSource returns the latest raw payload broadcast by a single address.
type DataSource interface {
	Data(ctx context.Context, addr string) (string, error)
}

// Tag is a handle to one RuuviTag. It caches the most recently decoded
// measurement. A Tag is not safe for concurrent use.
type Tag struct {
	addr  Address
	src   DataSource
	state Measurement
	now   func() time.Time
}

// NewTag creates a handle for addr that reads its payloads from src.
func NewTag(addr string, src DataSource) (*Tag, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return &Tag{
		addr: a,
		src:  src,
		now:  time.Now,
	}, nil
}

func (t *Tag) Address() Address {
	return t.addr
}

// State returns the last decoded measurement or the zero Measurement if the tag
// has never been updated.
func (t *Tag) State() Measurement {
	return t.state
}

// Update reads one payload for the tag and replaces the cached state with its
// decoded value. On failure the cached state is left untouched.
func (t *Tag) Update(ctx context.Context) (Measurement, error) {
	raw, err := t.src.Data(ctx, t.addr.String())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Measurement{}, fmt.Errorf("%w: %s: %w", ErrSensorTimeout, t.addr, err)
		}
		return Measurement{}, fmt.Errorf("failed to read %s: %w", t.addr, err)
	}
	m, err := Decode(raw)
	if err != nil {
		return Measurement{}, fmt.Errorf("%s: %w", t.addr, err)
	}
	addr := t.addr.String()
	m.Addr = &addr
	m.Timestamp = t.now()
	t.state = m
	return m, nil
}
