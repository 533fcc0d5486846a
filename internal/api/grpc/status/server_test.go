package status

import (
	"context"
	"net"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/repository/snapshot"
)

// fakeService returns a fixed snapshot.
type fakeService struct {
	snapshot *sensor.Snapshot
}

func (f *fakeService) Snapshot() *sensor.Snapshot { return f.snapshot.Clone() }

func TestServer_GetStatus(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		s := NewServer(&fakeService{snapshot: &sensor.Snapshot{
			Presence:  sensor.PresenceAbsent,
			Detection: sensor.DetectionSuppressed,
			UpdatedAt: time.Now(),
		}})

		resp, err := s.GetStatus(context.Background(), new(emptypb.Empty))
		require.NoError(t, err)
		require.Equal(t, "ABSENT", resp.GetFields()[snapshot.FieldPresence].GetStringValue())
		require.Equal(t, "SUPPRESSED", resp.GetFields()[snapshot.FieldDetection].GetStringValue())

		empty, err := NewServer(new(fakeService)).GetStatus(context.Background(), new(emptypb.Empty))
		require.NoError(t, err)
		require.Empty(t, empty.GetFields())
	})
}

// TestServe_Loopback serves on a real socket and calls both services.
func TestServe_Loopback(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hs := NewHealth("presence", "detection")
	svc := &fakeService{snapshot: &sensor.Snapshot{
		Presence:  sensor.PresencePresent,
		Detection: sensor.DetectionSuppressed,
		Alerts:    2,
	}}

	served := make(chan error, 1)

	go func() { served <- Serve(ctx, lis, svc, hs) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()

	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(callCtx, GetStatusMethod, new(emptypb.Empty), out))

	got, err := snapshot.FromStruct(out)
	require.NoError(t, err)
	require.Equal(t, sensor.PresencePresent, got.Presence)
	require.Equal(t, uint64(2), got.Alerts)

	SetServing(hs, "detection", false)

	check, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: "detection"})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check.GetStatus())

	check, err = healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: "presence"})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check.GetStatus())

	cancel()
	require.NoError(t, <-served)
}
