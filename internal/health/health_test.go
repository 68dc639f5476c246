package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func TestRegistry_Check(t *testing.T) {
	r := NewRegistry()
	r.Register("database", Ping("database", fakePinger{}))
	if got := r.Check(context.Background()); got.Status != "ok" || got.Components["database"].Status != "ok" {
		t.Fatalf("healthy report: %+v", got)
	}

	r.Register("uazapi", CheckerFunc(func(context.Context) ComponentHealth {
		return ComponentHealth{Name: "uazapi", Status: "degraded"}
	}))
	if got := r.Check(context.Background()).Status; got != "degraded" {
		t.Errorf("status = %q, want degraded", got)
	}

	r.Register("database", Ping("database", fakePinger{err: errors.New("connection refused")}))
	got := r.Check(context.Background())
	if got.Status != "error" {
		t.Errorf("status = %q, want error", got.Status)
	}
	if got.Components["database"].Message != "connection refused" {
		t.Errorf("message = %q", got.Components["database"].Message)
	}
	if n := r.Names(); len(n) != 2 || n[0] != "database" {
		t.Errorf("names = %v", n)
	}
}
