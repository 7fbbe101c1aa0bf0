package store

import "github.com/nhle/notification-sync/internal/model"

// Dedupe returns the records in their original order with records lacking
// an ID removed and every later duplicate of an ID dropped.
func Dedupe(records []model.Notification) []model.Notification {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.Notification, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CountUnread returns the number of records not yet read.
func CountUnread(records []model.Notification) int {
	n := 0
	for _, r := range records {
		if !r.IsRead {
			n++
		}
	}
	return n
}

// HasDuplicateIDs reports whether two records share an ID.
func HasDuplicateIDs(records []model.Notification) bool {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return true
		}
		seen[r.ID] = struct{}{}
	}
	return false
}
