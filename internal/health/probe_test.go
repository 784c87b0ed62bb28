package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	assert.NoError(t, Fixed(true, "ignored").Check(context.Background()))
	assert.EqualError(t, Fixed(false, "maintenance").Check(context.Background()), "maintenance")
	assert.EqualError(t, Fixed(false, "").Check(context.Background()), "unhealthy")
}

func TestAll(t *testing.T) {
	errA, errB := errors.New("a down"), errors.New("b down")
	ok := Fixed(true, "")
	fail := func(err error) CheckFunc { return func(context.Context) error { return err } }

	tests := []struct {
		name   string
		probes []Probe
		want   error
	}{
		{"empty", nil, nil},
		{"all pass", []Probe{ok, ok}, nil},
		{"nil skipped", []Probe{nil, ok, nil}, nil},
		{"first failure wins", []Probe{ok, fail(errA), fail(errB)}, errA},
		{"nil before failure", []Probe{nil, fail(errB)}, errB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, All(tt.probes...).Check(context.Background()))
		})
	}
}

func TestAll_ShortCircuits(t *testing.T) {
	ran := false
	p := All(Fixed(false, "first"), CheckFunc(func(context.Context) error {
		ran = true
		return nil
	}))
	assert.Error(t, p.Check(context.Background()))
	assert.False(t, ran)
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	require.NoError(t, p.Check(context.Background()), "zero gate is open")

	g.Set("shutting down")
	assert.EqualError(t, p.Check(context.Background()), "shutting down")

	g.Set("")
	assert.EqualError(t, p.Check(context.Background()), "draining")
}

func TestShutdownGate_Concurrent(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Set("draining")
		}()
		go func() {
			defer wg.Done()
			_ = p.Check(context.Background())
		}()
	}
	wg.Wait()
	assert.Error(t, p.Check(context.Background()))
}

func TestPing_HidesUnderlyingError(t *testing.T) {
	up := false
	p := Ping("user store", time.Second, func(context.Context) error {
		if !up {
			return fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused")
		}
		return nil
	})

	err := p.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, "user store unavailable", err.Error())
	assert.NotContains(t, err.Error(), "10.0.0.5")

	up = true
	assert.NoError(t, p.Check(context.Background()))
}

func TestPing_Deadline(t *testing.T) {
	p := Ping("db", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	start := time.Now()
	assert.Error(t, p.Check(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	noDeadline := Ping("db", 0, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			return errors.New("unexpected deadline")
		}
		return nil
	})
	assert.NoError(t, noDeadline.Check(context.Background()))
}

func TestReadiness_GateAndStore(t *testing.T) {
	var g ShutdownGate
	storeUp := true
	p := All(g.Probe(), Ping("user store", time.Second, func(context.Context) error {
		if !storeUp {
			return errors.New("closed pool")
		}
		return nil
	}))

	assert.NoError(t, p.Check(context.Background()))

	storeUp = false
	assert.EqualError(t, p.Check(context.Background()), "user store unavailable")

	g.Set("draining")
	assert.EqualError(t, p.Check(context.Background()), "draining", "gate is checked first")
}
