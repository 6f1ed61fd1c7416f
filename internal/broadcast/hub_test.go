package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/testutil"
	"droneMissionEngine/models"
)

func TestHub_DeliversDroneUpdates(t *testing.T) {
	log, _ := testutil.NullLogger()
	hub := NewHub(log, testutil.Metrics())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	want := DroneUpdate{
		DroneID:   7,
		Location:  geo.Point{Lat: 10.05, Lng: 106.05},
		Battery:   88.4,
		Status:    models.DroneStatusDelivering,
		MissionID: "m-1",
	}
	// Registration is asynchronous; keep broadcasting until the client sees a frame.
	var got Message
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	received := make(chan error, 1)
	go func() { received <- conn.ReadJSON(&got) }()
	for {
		hub.Broadcast(want)
		select {
		case err := <-received:
			require.NoError(t, err)
			assert.Equal(t, MessageTypeDroneUpdate, got.Type)
			assert.Equal(t, want, got.Payload)
			return
		case <-time.After(20 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("no update received")
			}
		}
	}
}

func TestHub_BroadcastAfterStopDoesNotBlock(t *testing.T) {
	log, _ := testutil.NullLogger()
	hub := NewHub(log, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() { hub.Run(ctx); close(stopped) }()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast(DroneUpdate{DroneID: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a stopped hub")
	}
}
