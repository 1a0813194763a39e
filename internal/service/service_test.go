package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
	"github.com/niktheblak/ruuvitag-sensor/pkg/scanner"
)

const (
	urlPayload   = "1E0201060303AAFE1616AAFE10EE037275752E76692F23416A7759414D4663CD"
	rawv2Payload = "0201061BFF99040512FC5394C37C0004FFFC040CAC364200CDCBB8334C884F"
)

func TestService_Poll(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	src := scanner.NewReplay(
		scanner.Event{Addr: "AA:2C:6A:1E:59:3D", Payload: urlPayload, Time: time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC)},
		scanner.Event{Addr: "BB:2C:6A:1E:59:3D", Payload: "some other device"},
		scanner.Event{Addr: "CC:2C:6A:1E:59:3D", Payload: rawv2Payload},
	)
	svc, err := New(Config{
		Source:     src,
		Registerer: reg,
	})
	require.NoError(t, err)

	current, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Empty(t, current)

	require.NoError(t, svc.Poll(context.Background()))
	current, err = svc.Current(context.Background())
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, 24.0, *current["AA:2C:6A:1E:59:3D"].Temperature)
	assert.Equal(t, time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC), current["AA:2C:6A:1E:59:3D"].Timestamp)
	assert.NotContains(t, current, ruuvitag.Address("BB:2C:6A:1E:59:3D"))

	assert.Equal(t, 24.0, testutil.ToFloat64(svc.metrics.temperature.WithLabelValues("AA:2C:6A:1E:59:3D")))
	assert.InDelta(t, 1.036, testutil.ToFloat64(svc.metrics.acceleration.WithLabelValues("CC:2C:6A:1E:59:3D", "z")), 0.0001)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.omittedTotal.WithLabelValues("BB:2C:6A:1E:59:3D")))
	// URL broadcasts carry no battery voltage
	assert.Equal(t, 1, testutil.CollectAndCount(svc.metrics.battery))
}

func TestService_Run(t *testing.T) {
	t.Parallel()

	src := scanner.NewReplay(scanner.Event{Addr: "AA:2C:6A:1E:59:3D", Payload: rawv2Payload})
	svc, err := New(Config{
		Source:      src,
		Interval:    10 * time.Millisecond,
		ScanTimeout: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.Run(ctx))
	current, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Len(t, current, 1)
}
