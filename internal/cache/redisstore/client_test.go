package redisstore

import (
	"context"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestNew_AppliesOptions(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc, err := New(t.Context(), mr.Addr(),
		WithPoolSize(3),
		WithDialTimeout(time.Second),
		WithReadTimeout(250*time.Millisecond),
		WithWriteTimeout(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	o := rc.rdb.Options()
	if o.PoolSize != 3 || o.DialTimeout != time.Second || o.ReadTimeout != 250*time.Millisecond {
		t.Fatalf("options pool=%d dial=%v read=%v", o.PoolSize, o.DialTimeout, o.ReadTimeout)
	}
	if o.WriteTimeout != 2*time.Second {
		t.Fatalf("write timeout=%v want default 2s kept", o.WriteTimeout)
	}
}

func TestNew_RequiresAddressAndReachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := New(ctx, ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
	if _, err := New(ctx, "127.0.0.1:1", WithDialTimeout(100*time.Millisecond)); err == nil {
		t.Fatalf("expected ping error for closed port")
	}
}

func TestMSetGetMGet(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	err := rc.MSetWithTTL(ctx, map[string][]byte{"k1": []byte("v1"), "k2": []byte("v2")}, 0)
	if err != nil {
		t.Fatalf("MSetWithTTL: %v", err)
	}

	v, ok, err := rc.Get(ctx, "k1")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Get k1=%q ok=%v err=%v", v, ok, err)
	}
	if _, ok, err := rc.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing ok=%v err=%v", ok, err)
	}

	got, err := rc.MGet(ctx, []string{"k1", "k2", "missing"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 2 || string(got["k2"]) != "v2" {
		t.Fatalf("MGet=%v", got)
	}
}

func TestMSetWithTTL_Expires(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.MSetWithTTL(ctx, map[string][]byte{"ttl-key": []byte("v")}, 2*time.Second); err != nil {
		t.Fatalf("MSetWithTTL: %v", err)
	}
	mr.FastForward(3 * time.Second)

	if _, ok, err := rc.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expected ttl-key to expire; ok=%v err=%v", ok, err)
	}
}

func TestScanPrefixAndDel(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	kv := map[string][]byte{"adj:a:1": nil, "adj:a:2": nil, "adj:b:1": nil}
	if err := rc.MSetWithTTL(ctx, kv, 0); err != nil {
		t.Fatalf("MSetWithTTL: %v", err)
	}
	keys, err := rc.ScanPrefix(ctx, "adj:a:")
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"adj:a:1", "adj:a:2"}) {
		t.Fatalf("keys=%v", keys)
	}
	if err := rc.Del(ctx, keys...); err != nil {
		t.Fatalf("Del: %v", err)
	}
	left, _ := rc.ScanPrefix(ctx, "adj:")
	if !slices.Equal(left, []string{"adj:b:1"}) {
		t.Fatalf("left=%v", left)
	}
}

func TestContextCanceled_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, err := rc.MGet(ctx, []string{"k"}); err == nil {
		t.Fatalf("expected error on MGet with canceled context")
	}
	if err := rc.MSetWithTTL(ctx, map[string][]byte{"k": nil}, 0); err == nil {
		t.Fatalf("expected error on MSetWithTTL with canceled context")
	}
}
