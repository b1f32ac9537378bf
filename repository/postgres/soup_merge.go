package postgres

import (
	"container/heap"

	"github.com/fastygo/soup/domain"
)

// keyedItem is a soup row with its sort key resolved.
type keyedItem struct {
	item domain.SoupItem
	key  domain.TimeKeyset
}

// before reports whether a ranks ahead of b: later key first, then the
// larger id, matching ORDER BY key DESC, id COLLATE "C" DESC.
func (a keyedItem) before(b keyedItem) bool {
	if c := a.key.LastVal.Compare(b.key.LastVal); c != 0 {
		return c > 0
	}
	return a.key.ID > b.key.ID
}

type streamHead struct {
	rows []keyedItem
	pos  int
}

type mergeHeap []*streamHead

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return h[i].rows[h[i].pos].before(h[j].rows[h[j].pos])
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*streamHead)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	top := old[n-1]
	*h = old[:n-1]
	return top
}

// mergeSorted merges per-table streams, each already in soup order, and
// returns at most limit rows.
func mergeSorted(streams [][]keyedItem, limit int) []keyedItem {
	h := make(mergeHeap, 0, len(streams))
	for _, s := range streams {
		if len(s) > 0 {
			h = append(h, &streamHead{rows: s})
		}
	}
	heap.Init(&h)

	out := make([]keyedItem, 0, limit)
	for h.Len() > 0 && len(out) < limit {
		top := h[0]
		out = append(out, top.rows[top.pos])
		top.pos++
		if top.pos == len(top.rows) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}

// reorderByEntities returns items in the order of entities. Entities without
// a matching item are skipped, duplicates are emitted once.
func reorderByEntities(items []domain.SoupItem, entities []domain.Entity) []domain.SoupItem {
	byEntity := make(map[domain.Entity]domain.SoupItem, len(items))
	for _, it := range items {
		byEntity[it.Base().Entity()] = it
	}

	out := make([]domain.SoupItem, 0, len(items))
	for _, e := range entities {
		it, ok := byEntity[e]
		if !ok {
			continue
		}
		out = append(out, it)
		delete(byEntity, e)
	}
	return out
}
