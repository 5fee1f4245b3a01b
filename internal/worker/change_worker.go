package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"despesas/internal/amqp"
	"despesas/internal/store"
)

type (
	Refresher interface {
		Refresh(ctx context.Context) (store.Snapshot, error)
	}

	Publisher interface {
		PublishChange(ctx context.Context, msg *amqp.ExpenseChangedMessage) error
		Source() string
	}

	Consumer interface {
		ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ExpenseChangedMessage) error) error
	}

	Broadcaster interface {
		BroadcastChange(kind string) error
	}
)

// ChangeWorker fans local writes out to other instances and browsers, and
// turns change messages from other instances into a reload.
type ChangeWorker struct {
	refresher Refresher
	publisher Publisher   // nil when AMQP is not configured
	hub       Broadcaster // nil disables browser pushes
	logger    *slog.Logger
	timeout   time.Duration

	wg sync.WaitGroup
}

func NewChangeWorker(refresher Refresher, publisher Publisher, hub Broadcaster, logger *slog.Logger) *ChangeWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeWorker{
		refresher: refresher,
		publisher: publisher,
		hub:       hub,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// HandleLocalChange is registered with store.OnChange. Publishing happens
// in the background so the write's HTTP response is not held up.
func (w *ChangeWorker) HandleLocalChange(c store.Change) {
	w.broadcast(string(c.Kind))

	if w.publisher == nil {
		return
	}
	msg := amqp.NewExpenseChangedMessage(string(c.Op), string(c.Kind), c.ID, c.Name, w.publisher.Source())
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.publisher.PublishChange(ctx, msg); err != nil {
			w.logger.Warn("Failed to publish change", "op", msg.Op, "kind", msg.Kind, "id", msg.ID, "error", err)
		}
	}()
}

// HandleChangeMessage reloads after another instance wrote, then pushes
// the change to this instance's browsers.
func (w *ChangeWorker) HandleChangeMessage(ctx context.Context, msg *amqp.ExpenseChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing change message",
		"op", msg.Op,
		"kind", msg.Kind,
		"id", msg.ID,
		"source", msg.Source)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if _, err := w.refresher.Refresh(ctx); err != nil {
		return err
	}
	w.broadcast(msg.Kind)
	return nil
}

// Run consumes change messages until ctx is done.
func (w *ChangeWorker) Run(ctx context.Context, consumer Consumer) error {
	return consumer.ConsumeChanges(ctx, w.HandleChangeMessage)
}

// Wait blocks until background publishes finish.
func (w *ChangeWorker) Wait() {
	w.wg.Wait()
}

func (w *ChangeWorker) broadcast(kind string) {
	if w.hub == nil {
		return
	}
	if err := w.hub.BroadcastChange(kind); err != nil {
		w.logger.Debug("Broadcast failed", "error", err)
	}
}
