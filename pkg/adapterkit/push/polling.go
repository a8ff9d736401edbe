package push

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// PollingSnapshotTagValuePush provides snapshot push for a source that can
// only be read on demand. While at least one tag is subscribed it reads the
// subscribed tags every interval and publishes values whose timestamp, value
// or status changed since the previous poll.
type PollingSnapshotTagValuePush struct {
	*SnapshotTagValueManager

	reader   features.ReadSnapshotTagValues
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPollingSnapshotTagValuePush creates a polling push feature over reader.
func NewPollingSnapshotTagValuePush(reader features.ReadSnapshotTagValues, interval time.Duration, cfg Config) *PollingSnapshotTagValuePush {
	if interval <= 0 {
		interval = time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "snapshot-poll"
	}
	p := &PollingSnapshotTagValuePush{
		reader:   reader,
		interval: interval,
		logger:   cfg.Logger,
	}
	p.SnapshotTagValueManager = NewSnapshotTagValueManager(cfg, SnapshotHooks{
		OnTagsAdded:   func([]string) { p.start() },
		OnTagsRemoved: p.onTagsRemoved,
	})
	return p
}

// IsPolling reports whether the poll loop is running.
func (p *PollingSnapshotTagValuePush) IsPolling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Close stops polling and closes every subscription.
func (p *PollingSnapshotTagValuePush) Close() error {
	p.stop()
	return p.SnapshotTagValueManager.Close()
}

func (p *PollingSnapshotTagValuePush) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

func (p *PollingSnapshotTagValuePush) stop() {
	p.mu.Lock()
	cancel, done := p.detach()
	p.mu.Unlock()
	stopLoop(cancel, done)
}

// detach clears the running loop. Callers hold p.mu.
func (p *PollingSnapshotTagValuePush) detach() (context.CancelFunc, chan struct{}) {
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	return cancel, done
}

func stopLoop(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// onTagsRemoved stops polling once no tag is subscribed. The check runs under
// p.mu so it cannot interleave with start.
func (p *PollingSnapshotTagValuePush) onTagsRemoved([]string) {
	p.mu.Lock()
	var cancel context.CancelFunc
	var done chan struct{}
	if len(p.SubscribedTags()) == 0 {
		cancel, done = p.detach()
	}
	p.mu.Unlock()
	stopLoop(cancel, done)
}

func (p *PollingSnapshotTagValuePush) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// seen belongs to this loop so a restarted loop republishes current values.
	seen := make(map[string]types.TagValue)
	p.poll(ctx, seen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, seen)
		}
	}
}

func (p *PollingSnapshotTagValuePush) poll(ctx context.Context, seen map[string]types.TagValue) {
	tags := p.SubscribedTags()
	if len(tags) == 0 {
		return
	}
	for tag := range seen {
		if !slices.Contains(tags, tag) {
			delete(seen, tag)
		}
	}

	results, err := p.reader.ReadSnapshotTagValues(ctx, types.ReadSnapshotTagValuesRequest{Tags: tags})
	if err != nil {
		if ctx.Err() == nil && p.logger != nil {
			p.logger.Warn("snapshot poll failed", slog.String("error", err.Error()))
		}
		return
	}

	for {
		v, err := results.Read(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() == nil && p.logger != nil {
				p.logger.Warn("snapshot poll stream failed", slog.String("error", err.Error()))
			}
			return
		}
		if changed(seen, v) {
			p.Publish(v)
		}
	}
}

func changed(seen map[string]types.TagValue, v types.TagValueQueryResult) bool {
	prev, ok := seen[v.TagID]
	seen[v.TagID] = v.Value
	if !ok {
		return true
	}
	return !prev.Timestamp.Equal(v.Value.Timestamp) ||
		prev.Status != v.Value.Status ||
		prev.Value.Type != v.Value.Value.Type ||
		prev.Value.String() != v.Value.Value.String()
}
