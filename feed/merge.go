package feed

import "slices"

// An Outcome describes what a merge did to the feed.
type Outcome string

const (
	Inserted   Outcome = "inserted"
	Updated    Outcome = "updated"
	Stale      Outcome = "stale"
	Reconciled Outcome = "reconciled"
	Unchanged  Outcome = "unchanged"
)

// Merge returns current with incoming merged in. A message already in the feed
// is replaced in place unless incoming is older than the stored copy, in which
// case current is returned as is. A message not yet in the feed is inserted
// according to placement.
//
// If incoming carries the nonce of a provisional entry, it takes over that
// entry's position. Merge never modifies current.
func Merge(current Feed, incoming Message, placement Placement) Feed {
	out, _ := merge(current, incoming, placement)
	return out
}

func merge(current Feed, incoming Message, placement Placement) (Feed, Outcome) {
	if p := current.indexOfProvisional(incoming.Nonce); p >= 0 {
		return reconcile(current, p, Entry{Message: incoming}), Reconciled
	}

	i := current.indexOf(incoming.ID)
	if i < 0 {
		entry := Entry{Message: incoming}
		out := current
		switch placement {
		case Head:
			out.Entries = make([]Entry, 0, len(current.Entries)+1)
			out.Entries = append(out.Entries, entry)
			out.Entries = append(out.Entries, current.Entries...)
		default:
			out.Entries = append(slices.Clip(current.Entries), entry)
		}
		return out, Inserted
	}

	stored := current.Entries[i]
	if incoming.UpdatedAt.Before(stored.Message.UpdatedAt) {
		return current, Stale
	}
	if stored.Message == incoming {
		return current, Unchanged
	}
	out := current
	out.Entries = slices.Clone(current.Entries)
	out.Entries[i] = Entry{Message: incoming, Cursor: stored.Cursor}
	return out, Updated
}

// reconcile replaces the provisional entry at p with the authoritative entry.
// A copy of the same message that is already in the feed under its server id
// is folded into position p.
func reconcile(current Feed, p int, auth Entry) Feed {
	out := current
	out.Entries = slices.Clone(current.Entries)

	if auth.Cursor == "" {
		auth.Cursor = current.Entries[p].Cursor
	}
	if j := current.indexOf(auth.Message.ID); j >= 0 && j != p {
		dup := current.Entries[j]
		if auth.Message.UpdatedAt.Before(dup.Message.UpdatedAt) {
			auth.Message = dup.Message
			if auth.Message.Nonce == "" {
				auth.Message.Nonce = current.Entries[p].Message.Nonce
			}
		}
		if dup.Cursor != "" {
			auth.Cursor = dup.Cursor
		}
		out.Entries[p] = auth
		out.Entries = slices.Delete(out.Entries, j, j+1)
		return out
	}
	out.Entries[p] = auth
	return out
}

// MergePage appends the entries of a page that are not in the feed yet and
// records info as the new page info. Entries already present are left alone;
// duplicates within the page keep the first occurrence. Page entries matching
// a provisional entry by nonce replace it in place.
func MergePage(current Feed, page []Entry, info PageInfo) Feed {
	out, _ := mergePage(current, page, info)
	return out
}

func mergePage(current Feed, page []Entry, info PageInfo) (Feed, int) {
	out := current
	out.PageInfo = info
	out.Entries = slices.Clip(current.Entries)

	seen := make(map[string]bool, len(current.Entries)+len(page))
	for _, e := range current.Entries {
		seen[e.Message.ID] = true
	}

	added := 0
	for _, e := range page {
		e.Provisional = false
		if p := out.indexOfProvisional(e.Message.Nonce); p >= 0 {
			out = reconcile(out, p, e)
			seen[e.Message.ID] = true
			continue
		}
		if seen[e.Message.ID] {
			continue
		}
		seen[e.Message.ID] = true
		out.Entries = append(out.Entries, e)
		added++
	}
	return out, added
}

// Provision appends msg at the tail as a provisional entry awaiting
// confirmation. It is a no-op if msg.ID is already in the feed.
func Provision(current Feed, msg Message) Feed {
	if current.indexOf(msg.ID) >= 0 {
		return current
	}
	out := current
	out.Entries = append(slices.Clip(current.Entries), Entry{Message: msg, Provisional: true})
	return out
}

// Rollback removes the provisional entry with the given id. Confirmed entries
// are never removed.
func Rollback(current Feed, id string) Feed {
	i := current.indexOf(id)
	if i < 0 || !current.Entries[i].Provisional {
		return current
	}
	out := current
	out.Entries = slices.Delete(slices.Clone(current.Entries), i, i+1)
	return out
}
