package apitypes

import "sort"

func typeRank(t string) int {
	if t == MessageTypeUser {
		return 0
	}
	return 1
}

// MessageLess orders by timestamp, then user before assistant, then id.
func MessageLess(a, b Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if ra, rb := typeRank(a.Type), typeRank(b.Type); ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

// SortTranscript sorts msgs in place.
func SortTranscript(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return MessageLess(msgs[i], msgs[j]) })
}

// NormalizeTranscript drops duplicate ids (the last occurrence wins) and
// returns a new, sorted slice.
func NormalizeTranscript(msgs []Message) []Message {
	idx := make(map[string]int, len(msgs))
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if i, seen := idx[m.ID]; seen {
			out[i] = m
			continue
		}
		idx[m.ID] = len(out)
		out = append(out, m)
	}
	SortTranscript(out)
	return out
}
