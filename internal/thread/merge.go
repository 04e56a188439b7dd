package thread

import (
	"time"

	"github.com/tribalmingle/mobileapp-sub000/internal/model"
)

// merge combines message sets, keeping the first occurrence of each id, and
// returns them sorted oldest first.
func merge(sets ...[]model.Message) []model.Message {
	var n int
	for _, set := range sets {
		n += len(set)
	}
	out := make([]model.Message, 0, n)
	for _, set := range sets {
		out = append(out, set...)
	}
	out = model.DedupeMessages(out)
	model.SortMessages(out)
	return out
}

// mergeLatest folds a fresh newest page into current. The page replaces the
// server messages in its time span, which starts at its oldest dated message.
// Older messages, undated ones and those keep accepts are never dropped. A
// page without any dated message only adds to current.
func mergeLatest(current, latest []model.Message, keep func(model.Message) bool) []model.Message {
	if len(latest) == 0 {
		return current
	}
	cutoff, ok := oldestDated(latest)
	if !ok {
		return merge(latest, current)
	}
	kept := make([]model.Message, 0, len(current))
	for _, m := range current {
		if m.Pending || m.CreatedAt.IsZero() || !m.CreatedAt.After(cutoff) || (keep != nil && keep(m)) {
			kept = append(kept, m)
		}
	}
	return merge(latest, kept)
}

func oldestDated(msgs []model.Message) (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			continue
		}
		if !found || m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
			found = true
		}
	}
	return oldest, found
}

func pendingOf(msgs []model.Message) []model.Message {
	var out []model.Message
	for _, m := range msgs {
		if m.Pending {
			out = append(out, m)
		}
	}
	return out
}
