package inflight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hospital/inpatient/internal/platform/apperr"
)

func newRedisGuard(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, time.Minute), mr
}

func TestRedis_AcquireAndRelease(t *testing.T) {
	g, mr := newRedisGuard(t)
	ctx := context.Background()

	release, err := g.Acquire(ctx, "pay", AdmissionKey("a1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists(keyPrefix + AdmissionKey("a1")) {
		t.Fatal("expected key stored in redis")
	}
	if ttl := mr.TTL(keyPrefix + AdmissionKey("a1")); ttl != time.Minute {
		t.Errorf("expected ttl 1m, got %v", ttl)
	}

	_, err = g.Acquire(ctx, "pay", AdmissionKey("a1"))
	if !errors.Is(err, apperr.ErrInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}

	release()
	if mr.Exists(keyPrefix + AdmissionKey("a1")) {
		t.Error("expected key removed on release")
	}
}

func TestRedis_PartialAcquireRollsBack(t *testing.T) {
	g, mr := newRedisGuard(t)
	ctx := context.Background()

	hold, _ := g.Acquire(ctx, "admit", PatientKey("p1"))
	defer hold()

	_, err := g.Acquire(ctx, "admit", BedKey("g1"), PatientKey("p1"))
	if !errors.Is(err, apperr.ErrInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}
	if mr.Exists(keyPrefix + BedKey("g1")) {
		t.Error("bed key should have been rolled back")
	}
}

func TestRedis_ReleaseKeepsForeignHold(t *testing.T) {
	g, mr := newRedisGuard(t)
	ctx := context.Background()

	release, _ := g.Acquire(ctx, "confirm", AdmissionKey("a1"))

	// hold expired and another replica took the key
	mr.FastForward(2 * time.Minute)
	other, err := g.Acquire(ctx, "confirm", AdmissionKey("a1"))
	if err != nil {
		t.Fatalf("expected expired key to be reacquired, got %v", err)
	}
	defer other()

	release()
	if !mr.Exists(keyPrefix + AdmissionKey("a1")) {
		t.Error("release must not delete a hold owned by someone else")
	}
}

func TestRedis_UnavailableIsTransient(t *testing.T) {
	g, mr := newRedisGuard(t)
	mr.Close()

	_, err := g.Acquire(context.Background(), "transfer", AdmissionKey("a1"))
	if !errors.Is(err, apperr.ErrTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
}
