package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"despesas/internal/amqp"
	"despesas/internal/store"
)

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) (store.Snapshot, error) {
	f.calls++
	return store.Snapshot{}, f.err
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ExpenseChangedMessage
	err  error
}

func (f *fakePublisher) PublishChange(_ context.Context, msg *amqp.ExpenseChangedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakePublisher) Source() string { return "instance-a" }

type fakeHub struct {
	kinds []string
}

func (f *fakeHub) BroadcastChange(kind string) error {
	f.kinds = append(f.kinds, kind)
	return nil
}

type fakeConsumer struct {
	msgs []*amqp.ExpenseChangedMessage
	errs []error
}

func (f *fakeConsumer) ConsumeChanges(ctx context.Context, h func(context.Context, *amqp.ExpenseChangedMessage) error) error {
	for _, m := range f.msgs {
		f.errs = append(f.errs, h(ctx, m))
	}
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandleLocalChangePublishesAndBroadcasts(t *testing.T) {
	pub := &fakePublisher{err: errors.New("circuit breaker is open")}
	hub := &fakeHub{}
	w := NewChangeWorker(&fakeRefresher{}, pub, hub, quiet())

	w.HandleLocalChange(store.Change{Op: store.OpDeleted, Kind: store.KindExpense, ID: 9})
	w.Wait()

	if len(pub.msgs) != 1 {
		t.Fatalf("expected one published message, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.Op != "deleted" || msg.Kind != "expense" || msg.ID != 9 || msg.Source != "instance-a" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(hub.kinds) != 1 || hub.kinds[0] != "expense" {
		t.Fatalf("expected broadcast, got %v", hub.kinds)
	}
}

func TestHandleLocalChangeWithoutAMQP(t *testing.T) {
	hub := &fakeHub{}
	w := NewChangeWorker(&fakeRefresher{}, nil, hub, quiet())
	w.HandleLocalChange(store.Change{Op: store.OpCreated, Kind: store.KindCategory, Name: "Lazer"})
	w.Wait()
	if len(hub.kinds) != 1 || hub.kinds[0] != "category" {
		t.Fatalf("expected category broadcast, got %v", hub.kinds)
	}
}

func TestRunRefreshesOnRemoteChange(t *testing.T) {
	ref := &fakeRefresher{}
	hub := &fakeHub{}
	w := NewChangeWorker(ref, nil, hub, quiet())

	consumer := &fakeConsumer{msgs: []*amqp.ExpenseChangedMessage{
		amqp.NewExpenseChangedMessage("created", "expense", 1, "", "instance-b"),
	}}
	if err := w.Run(context.Background(), consumer); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ref.calls != 1 {
		t.Fatalf("expected one refresh, got %d", ref.calls)
	}
	if len(hub.kinds) != 1 {
		t.Fatalf("expected broadcast after refresh, got %v", hub.kinds)
	}
}

func TestFailedRefreshIsReportedAndNotBroadcast(t *testing.T) {
	ref := &fakeRefresher{err: errors.New("api down")}
	hub := &fakeHub{}
	w := NewChangeWorker(ref, nil, hub, quiet())

	err := w.HandleChangeMessage(context.Background(), amqp.NewExpenseChangedMessage("updated", "expense", 2, "", "b"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(hub.kinds) != 0 {
		t.Fatalf("should not broadcast without fresh data, got %v", hub.kinds)
	}
}
