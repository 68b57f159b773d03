package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/kv"
)

func newTestLocal(t *testing.T, storage kv.Storage, opts ...LocalOption) *Local {
	t.Helper()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	seq := 0
	defaults := []LocalOption{
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		}),
		WithIDGenerator(func() domain.TicketID {
			seq++
			return domain.TicketID(fmt.Sprintf("t-%d", seq))
		}),
	}
	return NewLocal(storage, append(defaults, opts...)...)
}

func TestLocalCreateAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, kv.NewMemory())

	got, err := s.Create(ctx, domain.TicketInput{Topic: "Payment issue", Description: "card declined", Priority: "high"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got.ID == "" || got.Status != domain.TicketStatusNew || !got.AwaitsResponse || got.Response != nil {
		t.Fatalf("unexpected created ticket: %+v", got)
	}
	if got.Priority != domain.TicketPriorityHigh {
		t.Errorf("priority = %q", got.Priority)
	}

	res, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Tickets) != 1 || res.Tickets[0].ID != got.ID {
		t.Fatalf("List() = %+v", res)
	}
}

func TestLocalCreateDuplicateTopicsOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, kv.NewMemory())

	first, err := s.Create(ctx, domain.TicketInput{Topic: "Login"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := s.Create(ctx, domain.TicketInput{Topic: "Login"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("identical inputs share id %q", first.ID)
	}
	res, _ := s.List(ctx)
	if len(res.Tickets) != 2 || res.Tickets[0].ID != second.ID {
		t.Fatalf("newest ticket must be first: %+v", res.Tickets)
	}
	if res.Tickets[1].Priority != domain.TicketPriorityMedium {
		t.Errorf("default priority = %q", res.Tickets[1].Priority)
	}
}

func TestLocalCreatedAtNeverGoesBackwards(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	later := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewLocal(storage, WithClock(func() time.Time { return later }))
	if _, err := s.Create(ctx, domain.TicketInput{Topic: "future"}); err != nil {
		t.Fatal(err)
	}
	skewed := NewLocal(storage, WithClock(func() time.Time { return later.Add(-time.Hour) }))
	got, err := skewed.Create(ctx, domain.TicketInput{Topic: "skewed"})
	if err != nil {
		t.Fatal(err)
	}
	if got.CreatedAt.Before(later) {
		t.Errorf("CreatedAt = %v, want >= %v", got.CreatedAt, later)
	}
}

func TestLocalCreateRejectsBlankTopic(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	s := newTestLocal(t, storage)

	for _, topic := range []string{"", "   "} {
		if _, err := s.Create(ctx, domain.TicketInput{Topic: topic}); !errors.Is(err, ErrValidation) {
			t.Errorf("Create(%q) error = %v, want ErrValidation", topic, err)
		}
	}
	if _, err := storage.Get(ctx, DefaultKey); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("rejected create touched storage: %v", err)
	}
}

func TestLocalUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, kv.NewMemory())
	created, _ := s.Create(ctx, domain.TicketInput{Topic: "Printer", Description: "jams", Priority: "high", Tags: []string{"hw"}})

	resolved := domain.TicketStatusResolved
	got, err := s.Update(ctx, created.ID, domain.TicketPatch{Status: &resolved})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.UpdatedAt == nil {
		t.Fatalf("Update() left UpdatedAt unset: %+v", got)
	}
	want := created.Clone()
	want.Status = resolved
	want.UpdatedAt = got.UpdatedAt
	if !reflect.DeepEqual(*got, want) {
		t.Fatalf("Update() = %+v, want %+v", *got, want)
	}
	res, _ := s.List(ctx)
	if len(res.Tickets) != 1 || !reflect.DeepEqual(res.Tickets[0], want) {
		t.Errorf("listed = %+v, want %+v", res.Tickets, want)
	}
}

func TestLocalFailedUpdateLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, kv.NewMemory())
	created, _ := s.Create(ctx, domain.TicketInput{Topic: "Printer"})
	if _, err := s.Create(ctx, domain.TicketInput{Topic: "Scanner"}); err != nil {
		t.Fatal(err)
	}
	before, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}

	resolved := domain.TicketStatusResolved
	bad := domain.TicketStatus("archived")
	blank := "   "
	tests := []struct {
		name    string
		id      domain.TicketID
		patch   domain.TicketPatch
		wantErr error
	}{
		{name: "missing ticket", id: "missing", patch: domain.TicketPatch{Status: &resolved}, wantErr: ErrNotFound},
		{name: "unknown status", id: created.ID, patch: domain.TicketPatch{Status: &bad}, wantErr: ErrValidation},
		{name: "blank topic", id: created.ID, patch: domain.TicketPatch{Topic: &blank}, wantErr: ErrValidation},
		{name: "blank response", id: created.ID, patch: domain.TicketPatch{Response: &blank}, wantErr: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Update(ctx, tt.id, tt.patch); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
			}
			after, err := s.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(after, before) {
				t.Fatalf("store changed after failed update:\n got %+v\nwant %+v", after, before)
			}
		})
	}
}

func TestLocalDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, kv.NewMemory())
	a, _ := s.Create(ctx, domain.TicketInput{Topic: "a"})
	b, _ := s.Create(ctx, domain.TicketInput{Topic: "b"})

	ok, err := s.Delete(ctx, a.ID)
	if err != nil || !ok {
		t.Fatalf("Delete() = %v, %v", ok, err)
	}
	ok, err = s.Delete(ctx, a.ID)
	if err != nil || ok {
		t.Fatalf("second Delete() = %v, %v; want false, nil", ok, err)
	}
	res, _ := s.List(ctx)
	if len(res.Tickets) != 1 || res.Tickets[0].ID != b.ID {
		t.Fatalf("List() after delete = %+v", res.Tickets)
	}
}

func TestLocalAppendResponse(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, kv.NewMemory())
	created, _ := s.Create(ctx, domain.TicketInput{Topic: "VPN"})

	got, err := s.AppendResponse(ctx, created.ID, "  restart the client  ")
	if err != nil {
		t.Fatalf("AppendResponse() error = %v", err)
	}
	if got.Response == nil || *got.Response != "restart the client" || got.AwaitsResponse {
		t.Fatalf("AppendResponse() = %+v", got)
	}

	before, _ := s.List(ctx)
	if _, err := s.AppendResponse(ctx, "missing", "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendResponse(missing) error = %v", err)
	}
	if _, err := s.AppendResponse(ctx, created.ID, "  "); !errors.Is(err, ErrValidation) {
		t.Errorf("AppendResponse(blank) error = %v", err)
	}
	if after, _ := s.List(ctx); !reflect.DeepEqual(after, before) {
		t.Errorf("failed AppendResponse changed store:\n got %+v\nwant %+v", after, before)
	}
}

func TestLocalAppendResponseBlankSkipsStorage(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{Storage: kv.NewMemory()}
	s := newTestLocal(t, storage)

	if _, err := s.AppendResponse(ctx, "t-1", " \t\n"); !errors.Is(err, ErrValidation) {
		t.Fatalf("AppendResponse(blank) error = %v, want ErrValidation", err)
	}
	if storage.calls != 0 {
		t.Errorf("storage calls = %d, want 0", storage.calls)
	}
}

func TestLocalCorruptData(t *testing.T) {
	ctx := context.Background()

	t.Run("discard", func(t *testing.T) {
		storage := kv.NewMemory()
		_ = storage.Set(ctx, DefaultKey, []byte("{not json"))
		s := newTestLocal(t, storage)
		res, err := s.List(ctx)
		if err != nil || len(res.Tickets) != 0 {
			t.Fatalf("List() = %+v, %v; want empty", res, err)
		}
		if _, err := s.Create(ctx, domain.TicketInput{Topic: "fresh"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		res, _ = s.List(ctx)
		if len(res.Tickets) != 1 {
			t.Fatalf("corrupt data not replaced: %+v", res.Tickets)
		}
	})

	t.Run("fail", func(t *testing.T) {
		storage := kv.NewMemory()
		_ = storage.Set(ctx, DefaultKey, []byte("{not json"))
		s := newTestLocal(t, storage, WithCorruptPolicy(FailOnCorrupt))
		if _, err := s.List(ctx); !errors.Is(err, ErrCorruptState) {
			t.Fatalf("List() error = %v, want ErrCorruptState", err)
		}
		if _, err := s.Create(ctx, domain.TicketInput{Topic: "x"}); !errors.Is(err, ErrCorruptState) {
			t.Fatalf("Create() error = %v, want ErrCorruptState", err)
		}
		raw, _ := storage.Get(ctx, DefaultKey)
		if string(raw) != "{not json" {
			t.Errorf("corrupt data overwritten: %q", raw)
		}
	})
}

func TestLocalPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	storage, err := kv.NewFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	created, err := newTestLocal(t, storage).Create(ctx, domain.TicketInput{Topic: "persisted", Tags: []string{"billing"}})
	if err != nil {
		t.Fatal(err)
	}
	res, err := NewLocal(storage).List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tickets) != 1 || res.Tickets[0].ID != created.ID || len(res.Tickets[0].Tags) != 1 {
		t.Fatalf("reloaded = %+v", res.Tickets)
	}
}

type countingStorage struct {
	kv.Storage
	calls int
}

func (c *countingStorage) Get(ctx context.Context, key string) ([]byte, error) {
	c.calls++
	return c.Storage.Get(ctx, key)
}

func (c *countingStorage) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	c.calls++
	return c.Storage.Update(ctx, key, fn)
}
