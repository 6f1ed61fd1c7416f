package testutil

import (
	"context"
	"database/sql"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/grpc/metadata"

	"droneMissionEngine/internal/db"
	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/metrics"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

// OpenInMemoryDB opens a private in-memory SQLite database and applies migrations.
// The database is closed via t.Cleanup.
func OpenInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	// Shared cache keeps the schema alive across pool reconnects; the random
	// name keeps tests from seeing each other's rows.
	d, err := db.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// SeedDrone inserts an IDLE drone at loc with the given battery level.
func SeedDrone(t *testing.T, drones *repository.DroneRepository, serial string, battery float64, loc geo.Point) *models.Drone {
	t.Helper()
	dr, err := drones.Create(context.Background(), &models.Drone{
		Name:         "drone-" + serial,
		SerialNumber: serial,
		BatteryLevel: battery,
		Location:     loc,
		Status:       models.DroneStatusIdle,
	})
	if err != nil {
		t.Fatalf("seed drone %s: %v", serial, err)
	}
	return dr
}

// NullLogger returns a logger that discards output and records entries for assertions.
func NullLogger() (*logrus.Logger, *logtest.Hook) {
	return logtest.NewNullLogger()
}

// Metrics returns collectors bound to a private registry.
func Metrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// GenerateJWTHS256 returns a signed JWT string with minimal claims used by the app.
func GenerateJWTHS256(t *testing.T, secret, name, kind string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"name": name,
		"kind": kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}
