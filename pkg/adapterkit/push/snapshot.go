package push

import (
	"context"
	"slices"
	"sync"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// SnapshotHooks are told when a tag gains its first subscriber or loses its
// last one, so an adapter can start or stop monitoring it at the source.
type SnapshotHooks struct {
	OnTagsAdded   func(tags []string)
	OnTagsRemoved func(tags []string)
}

// SnapshotTagValueManager implements features.SnapshotTagValuePush.
// Each subscription selects a set of tags (by ID or name) and only receives
// values for those tags. The latest value of every subscribed tag is cached
// and sent to subscriptions that add the tag later.
type SnapshotTagValueManager struct {
	manager *Manager[types.TagValueQueryResult]
	hooks   SnapshotHooks

	mu   sync.Mutex
	subs map[string]*TagValueSubscription
	refs map[string]int
	last map[string]types.TagValueQueryResult
}

var _ features.SnapshotTagValuePush = (*SnapshotTagValueManager)(nil)

// NewSnapshotTagValueManager creates a running snapshot push manager.
func NewSnapshotTagValueManager(cfg Config, hooks SnapshotHooks) *SnapshotTagValueManager {
	if cfg.Name == "" {
		cfg.Name = "snapshot"
	}
	s := &SnapshotTagValueManager{
		hooks: hooks,
		subs:  make(map[string]*TagValueSubscription),
		refs:  make(map[string]int),
		last:  make(map[string]types.TagValueQueryResult),
	}
	s.manager = NewManager(cfg, Hooks[types.TagValueQueryResult]{
		OnSubscriptionRemoved: s.onRemoved,
	})
	return s
}

// SubscribeSnapshotTagValues opens a subscription for req.Tags.
func (s *SnapshotTagValueManager) SubscribeSnapshotTagValues(ctx context.Context, req types.CreateSnapshotTagValueSubscriptionRequest) (features.TagValueSubscription, error) {
	sub, err := s.Subscribe(ctx, req.Mode, req.Tags...)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Subscribe opens a subscription for tags.
func (s *SnapshotTagValueManager) Subscribe(ctx context.Context, mode types.SubscriptionMode, tags ...string) (*TagValueSubscription, error) {
	return s.SubscribeWithOptions(ctx, mode, tags, nil)
}

// SubscribeWithOptions is Subscribe with overrides for the subscription queue.
func (s *SnapshotTagValueManager) SubscribeWithOptions(ctx context.Context, mode types.SubscriptionMode, tags []string, opts []SubscribeOption) (*TagValueSubscription, error) {
	ts := &TagValueSubscription{
		owner: s,
		tags:  make(map[string]struct{}),
	}

	sub, err := s.manager.subscribe(ctx, mode, ts.matches, opts...)
	if err != nil {
		return nil, err
	}
	ts.Subscription = sub

	s.mu.Lock()
	s.subs[sub.ID()] = ts
	s.mu.Unlock()

	select {
	case <-sub.Done():
		// closed by ctx before it was indexed
		s.mu.Lock()
		delete(s.subs, sub.ID())
		s.mu.Unlock()
		return nil, akerrors.Runtime("push.subscribe", akerrors.ErrClosed, "subscription closed during setup")
	default:
	}

	if len(tags) > 0 {
		if err := ts.AddTags(ctx, tags...); err != nil {
			_ = ts.Close()
			return nil, err
		}
	}
	return ts, nil
}

// Publish enqueues a value for subscribers of its tag and caches it as the
// tag's latest value.
func (s *SnapshotTagValueManager) Publish(v types.TagValueQueryResult) bool {
	s.mu.Lock()
	if s.refs[v.TagID] > 0 {
		s.last[v.TagID] = v
	}
	if v.TagName != v.TagID && s.refs[v.TagName] > 0 {
		s.last[v.TagName] = v
	}
	s.mu.Unlock()
	return s.manager.Publish(v)
}

// SubscribedTags returns every tag with at least one subscriber, sorted.
func (s *SnapshotTagValueManager) SubscribedTags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]string, 0, len(s.refs))
	for tag := range s.refs {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// HasSubscriptions reports whether any subscription is live.
func (s *SnapshotTagValueManager) HasSubscriptions() bool {
	return s.manager.HasSubscriptions()
}

// HasActiveSubscriptions reports whether any Active subscription is live.
func (s *SnapshotTagValueManager) HasActiveSubscriptions() bool {
	return s.manager.HasActiveSubscriptions()
}

// Close closes every subscription and stops the dispatcher.
func (s *SnapshotTagValueManager) Close() error {
	return s.manager.Close()
}

func (s *SnapshotTagValueManager) onRemoved(sub *Subscription[types.TagValueQueryResult]) {
	s.mu.Lock()
	ts, ok := s.subs[sub.ID()]
	delete(s.subs, sub.ID())
	s.mu.Unlock()
	if !ok {
		return
	}
	ts.releaseAll()
}

// retain increments tag reference counts and returns the tags that gained
// their first subscriber, plus cached values to replay.
func (s *SnapshotTagValueManager) retain(tags []string) ([]string, []types.TagValueQueryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	var replay []types.TagValueQueryResult
	for _, tag := range tags {
		s.refs[tag]++
		if s.refs[tag] == 1 {
			added = append(added, tag)
		}
		if v, ok := s.last[tag]; ok {
			replay = append(replay, v)
		}
	}
	return added, replay
}

func (s *SnapshotTagValueManager) releaseRefs(tags []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for _, tag := range tags {
		if s.refs[tag] == 0 {
			continue
		}
		s.refs[tag]--
		if s.refs[tag] == 0 {
			delete(s.refs, tag)
			delete(s.last, tag)
			removed = append(removed, tag)
		}
	}
	return removed
}

func (s *SnapshotTagValueManager) fire(hook func([]string), name string, tags []string) {
	if hook == nil || len(tags) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			observability.LogHookPanic(s.manager.cfg.Logger, name, r)
		}
	}()
	hook(tags)
}

// TagValueSubscription is a snapshot subscription with a mutable tag set.
type TagValueSubscription struct {
	*Subscription[types.TagValueQueryResult]

	owner *SnapshotTagValueManager

	mu   sync.RWMutex
	tags map[string]struct{}
}

var _ features.TagValueSubscription = (*TagValueSubscription)(nil)

// Tags returns the subscribed tags, sorted.
func (t *TagValueSubscription) Tags() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tags := make([]string, 0, len(t.tags))
	for tag := range t.tags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// AddTags subscribes to more tags. Cached values of those tags are queued
// immediately.
func (t *TagValueSubscription) AddTags(ctx context.Context, tags ...string) error {
	t.mu.Lock()
	select {
	case <-t.Done():
		t.mu.Unlock()
		return nil
	default:
	}
	var fresh []string
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := t.tags[tag]; ok {
			continue
		}
		t.tags[tag] = struct{}{}
		fresh = append(fresh, tag)
	}
	added, replay := t.owner.retain(fresh)
	t.mu.Unlock()

	t.owner.fire(t.owner.hooks.OnTagsAdded, "on_tags_added", added)
	for _, v := range replay {
		t.deliver(ctx, v)
	}
	return nil
}

// RemoveTags unsubscribes from tags.
func (t *TagValueSubscription) RemoveTags(_ context.Context, tags ...string) error {
	t.mu.Lock()
	var gone []string
	for _, tag := range tags {
		if _, ok := t.tags[tag]; ok {
			delete(t.tags, tag)
			gone = append(gone, tag)
		}
	}
	t.mu.Unlock()
	return t.releaseOwned(gone)
}

func (t *TagValueSubscription) releaseAll() {
	t.mu.Lock()
	tags := make([]string, 0, len(t.tags))
	for tag := range t.tags {
		tags = append(tags, tag)
	}
	clear(t.tags)
	t.mu.Unlock()
	_ = t.releaseOwned(tags)
}

func (t *TagValueSubscription) releaseOwned(tags []string) error {
	removed := t.owner.releaseRefs(tags)
	t.owner.fire(t.owner.hooks.OnTagsRemoved, "on_tags_removed", removed)
	return nil
}

func (t *TagValueSubscription) matches(v types.TagValueQueryResult) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.tags[v.TagID]; ok {
		return true
	}
	_, ok := t.tags[v.TagName]
	return ok
}
