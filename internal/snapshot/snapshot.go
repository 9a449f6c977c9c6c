// Package snapshot keeps the last known invite use counters of each
// community. A snapshot is created by the first refresh and replaced as a
// whole by every later one; it is never merged.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/tariel-x/affiliates/internal/platform"
)

var ErrFetch = errors.New("invite fetch failed")

const defaultFetchTimeout = 10 * time.Second

// Snapshot maps invite code to cumulative uses. Values returned by Store
// are owned by the caller.
type Snapshot map[string]int

type Store struct {
	lister       platform.InviteLister
	fetchTimeout time.Duration
	logger       *slog.Logger

	mu    sync.RWMutex
	snaps map[string]Snapshot
	keys  map[string]*sync.Mutex
}

func NewStore(lister platform.InviteLister, fetchTimeout time.Duration, logger *slog.Logger) *Store {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		lister:       lister,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		snaps:        make(map[string]Snapshot),
		keys:         make(map[string]*sync.Mutex),
	}
}

// Get returns the stored snapshot without fetching. ok is false before the
// first successful refresh.
func (s *Store) Get(communityID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[communityID]
	if !ok {
		return nil, false
	}
	return maps.Clone(snap), true
}

// Refresh fetches the live counters and replaces the stored snapshot. On
// failure the previous snapshot keeps being served.
func (s *Store) Refresh(ctx context.Context, communityID string) (Snapshot, error) {
	_, _, fresh, err := s.Advance(ctx, communityID)
	return fresh, err
}

// Advance reads the stored snapshot, fetches a fresh one and stores it, all
// while holding the community's lock, so concurrent callers each observe
// their own (old, fresh) pair. hadOld is false when no baseline existed.
func (s *Store) Advance(ctx context.Context, communityID string) (old Snapshot, hadOld bool, fresh Snapshot, err error) {
	unlock := s.lock(communityID)
	defer unlock()

	old, hadOld = s.Get(communityID)

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	invites, err := s.lister.ListInvites(fetchCtx, communityID)
	if err != nil {
		return old, hadOld, nil, fmt.Errorf("%w for community %s: %w", ErrFetch, communityID, err)
	}

	fresh = make(Snapshot, len(invites))
	for _, inv := range invites {
		fresh[inv.Code] = inv.Uses
	}

	if hadOld {
		for code, uses := range fresh {
			if prev, ok := old[code]; ok && uses < prev {
				s.logger.Warn("invite use counter decreased", "community_id", communityID, "code", code, "old", prev, "new", uses)
			}
		}
	}

	s.mu.Lock()
	s.snaps[communityID] = maps.Clone(fresh)
	s.mu.Unlock()

	return old, hadOld, fresh, nil
}

// RunRefresher refreshes communityID every interval until ctx is done.
func (s *Store) RunRefresher(ctx context.Context, communityID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := s.Refresh(ctx, communityID)
			if err != nil {
				s.logger.Warn("periodic invite refresh failed", "community_id", communityID, "error", err)
				continue
			}
			s.logger.Debug("invite snapshot refreshed", "community_id", communityID, "codes", len(snap))
		}
	}
}

func (s *Store) lock(communityID string) func() {
	s.mu.Lock()
	m, ok := s.keys[communityID]
	if !ok {
		m = &sync.Mutex{}
		s.keys[communityID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
