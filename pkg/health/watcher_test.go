package health

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dialWatcher(t *testing.T, w *Watcher) grpc_health_v1.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	go func() { _ = w.Serve(lis) }()
	t.Cleanup(w.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return grpc_health_v1.NewHealthClient(conn)
}

func status(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestWatcher_PublishesStatus(t *testing.T) {
	var healthy atomic.Bool
	check := func(ctx context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("connection refused")
	}

	w := NewWatcher(Config{Interval: 20 * time.Millisecond}, check, zerolog.New(zerolog.NewTestWriter(t)))
	client := dialWatcher(t, w)

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, client, ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	healthy.Store(true)
	require.Eventually(t, func() bool {
		return status(t, client, ServiceName) == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, client, ""))
	assert.True(t, w.Serving())

	healthy.Store(false)
	require.Eventually(t, func() bool {
		return status(t, client, ServiceName) == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, w.Serving())
}

func TestWatcher_CheckTimeout(t *testing.T) {
	check := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	w := NewWatcher(Config{Interval: time.Hour, Timeout: 10 * time.Millisecond}, check, zerolog.New(zerolog.NewTestWriter(t)))

	start := time.Now()
	w.probe(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, w.Serving())
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	var calls atomic.Int32
	w := NewWatcher(Config{Interval: 5 * time.Millisecond}, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, zerolog.New(zerolog.NewTestWriter(t)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
