package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store/storetest"
)

func TestEnsureProfile_CreatesWithDefaults(t *testing.T) {
	mem := storetest.New()
	m := NewManager(mem)
	ctx := context.Background()

	if err := m.EnsureProfile(ctx, "sub_1", Seed{}); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}

	p, err := m.GetProfile(ctx, "sub_1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p == nil {
		t.Fatal("expected profile, got nil")
	}
	if p.Role != DefaultRole {
		t.Errorf("role = %q, want %q", p.Role, DefaultRole)
	}
	if p.CreatedAt.IsZero() || !p.CreatedAt.Equal(p.UpdatedAt) {
		t.Errorf("timestamps not stamped together: created=%v updated=%v", p.CreatedAt, p.UpdatedAt)
	}
}

func TestEnsureProfile_SeedRole(t *testing.T) {
	mem := storetest.New()
	m := NewManager(mem)
	ctx := context.Background()

	if err := m.EnsureProfile(ctx, "sub_admin", Seed{Role: "admin"}); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	p, _ := m.GetProfile(ctx, "sub_admin")
	if p.Role != "admin" {
		t.Errorf("role = %q, want admin", p.Role)
	}
}

func TestEnsureProfile_ExistingRowIsSuccessAndUntouched(t *testing.T) {
	mem := storetest.New()
	m := NewManager(mem)
	ctx := context.Background()

	if err := m.EnsureProfile(ctx, "sub_1", Seed{Role: "admin"}); err != nil {
		t.Fatalf("first EnsureProfile: %v", err)
	}
	before, _ := m.GetProfile(ctx, "sub_1")

	// Second ensure with a different seed must not modify the row.
	if err := m.EnsureProfile(ctx, "sub_1", Seed{Role: "user"}); err != nil {
		t.Fatalf("second EnsureProfile: %v", err)
	}
	after, _ := m.GetProfile(ctx, "sub_1")

	if after.Role != before.Role {
		t.Errorf("role changed: %q -> %q", before.Role, after.Role)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("createdAt changed: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
}

// N concurrent ensures for the same subject end with exactly one row and a
// single creation timestamp.
func TestEnsureProfile_ConcurrentSingleCreation(t *testing.T) {
	mem := storetest.New()
	m := NewManager(mem)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.EnsureProfile(ctx, "sub_race", Seed{})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent EnsureProfile: %v", err)
		}
	}
	if got := mem.PutCalls(); got != 1 {
		t.Errorf("store writes = %d, want exactly 1", got)
	}
	p, err := m.GetProfile(ctx, "sub_race")
	if err != nil || p == nil {
		t.Fatalf("GetProfile after race: %v %v", p, err)
	}
}

func TestEnsureProfile_StoreDownFailsClosed(t *testing.T) {
	mem := storetest.New()
	mem.FailWith = context.DeadlineExceeded
	m := NewManager(mem)

	if err := m.EnsureProfile(context.Background(), "sub_1", Seed{}); err == nil {
		t.Fatal("expected error when store is unavailable")
	}
}

func TestGetProfile_AbsentIsNilNil(t *testing.T) {
	m := NewManager(storetest.New())
	p, err := m.GetProfile(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil profile, got %+v", p)
	}
}

func TestSuspendUnsuspend(t *testing.T) {
	mem := storetest.New()
	m := NewManager(mem)
	ctx := context.Background()

	if err := m.EnsureProfile(ctx, "sub_1", Seed{}); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}

	p, err := m.Suspend(ctx, "sub_1")
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if !p.IsSuspended() {
		t.Error("profile not suspended after Suspend")
	}

	// Suspending again keeps the original timestamp.
	first := *p.SuspendedAt
	time.Sleep(5 * time.Millisecond)
	p, err = m.Suspend(ctx, "sub_1")
	if err != nil {
		t.Fatalf("second Suspend: %v", err)
	}
	if !p.SuspendedAt.Equal(first) {
		t.Errorf("suspendedAt changed on re-suspend: %v -> %v", first, *p.SuspendedAt)
	}

	p, err = m.Unsuspend(ctx, "sub_1")
	if err != nil {
		t.Fatalf("Unsuspend: %v", err)
	}
	if p.IsSuspended() {
		t.Error("profile still suspended after Unsuspend")
	}
}

func TestSuspend_MissingProfile(t *testing.T) {
	m := NewManager(storetest.New())
	if _, err := m.Suspend(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetRole(t *testing.T) {
	mem := storetest.New()
	m := NewManager(mem)
	ctx := context.Background()

	if err := m.EnsureProfile(ctx, "sub_1", Seed{}); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	p, err := m.SetRole(ctx, "sub_1", "admin")
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if p.Role != "admin" {
		t.Errorf("role = %q, want admin", p.Role)
	}
}

func TestIsSuspended_NilReceiver(t *testing.T) {
	var p *Profile
	if p.IsSuspended() {
		t.Error("nil profile reported suspended")
	}
}
