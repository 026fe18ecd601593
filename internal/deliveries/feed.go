package deliveries

import (
	"context"
	"sync"

	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
)

// AvailableFeed mirrors the set of claimable deliveries, updated from change
// events: a matching insert prepends, any update that claims or retires the
// row removes it. Events are best effort, so Refresh re-reads the store as
// the reconciliation backstop.
type AvailableFeed struct {
	mu    sync.Mutex
	items []*Delivery

	repo    deliveryRepository
	sub     *docstore.Subscription
	updates chan struct{}
	once    sync.Once
}

// WatchAvailable loads the current claimable set and keeps it live until
// Close is called.
func (s *service) WatchAvailable(ctx context.Context) (*AvailableFeed, error) {
	feed := &AvailableFeed{
		repo:    s.repo,
		updates: make(chan struct{}, 1),
	}
	if err := feed.Refresh(ctx); err != nil {
		return nil, err
	}

	feed.sub = s.repo.Store().Bus().
		Channel("available-deliveries").
		On(docstore.EventAll, TableName, "status=eq.pending", feed.apply).
		Subscribe()
	return feed, nil
}

// Snapshot returns the current list, newest first.
func (f *AvailableFeed) Snapshot() []*Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Delivery, len(f.items))
	copy(out, f.items)
	return out
}

// Updates signals after the list changes. The channel carries no payload;
// call Snapshot for the current state.
func (f *AvailableFeed) Updates() <-chan struct{} {
	return f.updates
}

// Refresh replaces the list with a fresh query result.
func (f *AvailableFeed) Refresh(ctx context.Context) error {
	items, err := f.repo.Available(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
	f.notify()
	return nil
}

// Close tears the subscription down. Safe to call more than once.
func (f *AvailableFeed) Close() {
	f.once.Do(func() {
		if f.sub != nil {
			f.sub.Unsubscribe()
		}
	})
}

func (f *AvailableFeed) apply(event docstore.Event) {
	changed := false
	f.mu.Lock()
	switch event.Type {
	case docstore.EventInsert:
		if claimable(event.New) {
			f.items = append([]*Delivery{fromDocument(event.New)}, f.items...)
			changed = true
		}
	case docstore.EventUpdate:
		if !claimable(event.New) {
			changed = f.removeLocked(event.New.ID())
		}
	case docstore.EventDelete:
		changed = f.removeLocked(event.New.ID())
	}
	f.mu.Unlock()
	if changed {
		f.notify()
	}
}

func (f *AvailableFeed) removeLocked(id string) bool {
	for i, item := range f.items {
		if item.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

func (f *AvailableFeed) notify() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}

func claimable(doc docstore.Document) bool {
	return doc.GetString("status") == enums.DeliveryStatusPending.String() && doc.IsNull("courier_id")
}
