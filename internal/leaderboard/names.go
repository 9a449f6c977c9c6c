package leaderboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tariel-x/affiliates/internal/store"

	"golang.org/x/sync/singleflight"
)

const DefaultNameTTL = time.Hour

// FallbackName is shown for members without a known username.
func FallbackName(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "Unknown"
	}
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return "User " + id
}

type cachedName struct {
	name    string
	expires time.Time
}

// Names caches member display names. Lookup failures fall back to
// FallbackName and are not cached.
type Names struct {
	store *store.Store
	ttl   time.Duration
	nowFn func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedName
	group singleflight.Group
}

func NewNames(st *store.Store, ttl time.Duration) *Names {
	return &Names{
		store: st,
		ttl:   ttl,
		nowFn: time.Now,
		cache: make(map[string]cachedName),
	}
}

func (n *Names) Name(ctx context.Context, memberID string) string {
	now := n.nowFn()
	n.mu.RLock()
	c, ok := n.cache[memberID]
	n.mu.RUnlock()
	if ok && now.Before(c.expires) {
		return c.name
	}

	v, err, _ := n.group.Do(memberID, func() (any, error) {
		member, err := n.store.GetMember(ctx, memberID)
		if errors.Is(err, store.ErrNotFound) {
			return FallbackName(memberID), nil
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(member.Username) == "" {
			return FallbackName(memberID), nil
		}
		return member.Username, nil
	})
	if err != nil {
		return FallbackName(memberID)
	}

	name := v.(string)
	n.mu.Lock()
	n.cache[memberID] = cachedName{name: name, expires: now.Add(n.ttl)}
	n.mu.Unlock()
	return name
}

// Forget drops a cached name, e.g. after the member renamed.
func (n *Names) Forget(memberID string) {
	n.mu.Lock()
	delete(n.cache, memberID)
	n.mu.Unlock()
}
