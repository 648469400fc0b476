package approval

import (
	"context"
	"strings"
	"time"
)

// PollChannel answers confirmation requests by writing a pending
// approval file and polling until someone resolves it with
// `toolgate approve` or `toolgate deny`, or the context expires.
//
// The target string is the approval key (user.tool). A denied record
// keeps answering no until it is cleaned up; consumed and expired
// records are replaced with a fresh pending request.
type PollChannel struct {
	store    *Store
	interval time.Duration
}

// NewPollChannel creates a channel polling the store at the given
// interval. Intervals at or below zero fall back to one second.
func NewPollChannel(store *Store, interval time.Duration) *PollChannel {
	if interval <= 0 {
		interval = time.Second
	}
	return &PollChannel{store: store, interval: interval}
}

// Confirm blocks until the approval keyed by target is resolved.
// One-time grants are consumed on the spot so the next call asks again.
func (c *PollChannel) Confirm(ctx context.Context, target, prompt string) (bool, error) {
	if status, err := c.store.Check(target); err == nil {
		if status == StatusConsumed || status == StatusExpired {
			if err := c.store.Remove(target); err != nil {
				return false, err
			}
		}
	}

	user, tool := splitKey(target)
	if err := c.store.Request(target, tool, user, prompt); err != nil {
		return false, err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		status, err := c.store.Check(target)
		if err != nil {
			return false, err
		}

		switch status {
		case StatusApproved:
			if one, err := c.store.OneTime(target); err == nil && one {
				_ = c.store.Consume(target)
			}
			return true, nil
		case StatusDenied:
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// splitKey recovers user and tool from a user.tool key. Users with
// dots in their name lose the split; the key itself stays intact.
func splitKey(key string) (user, tool string) {
	user, tool, ok := strings.Cut(key, ".")
	if !ok {
		return key, ""
	}
	return user, tool
}
