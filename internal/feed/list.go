package feed

// DefaultCapacity matches the page size of the remote news grid.
const DefaultCapacity = 25

// MergeResult reports what a mutation did to a List.
// Dropped holds inbound items that were duplicates or did not fit at all.
type MergeResult struct {
	Inserted []Item
	Evicted  []Item
	Dropped  []Item
}

func (r MergeResult) Empty() bool {
	return len(r.Inserted) == 0 && len(r.Evicted) == 0
}

// List keeps items sorted newest first and never holds more than its capacity.
// It is not safe for concurrent use; callers serialize access.
type List struct {
	items    []Item
	capacity int
}

func NewList(capacity int) *List {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &List{items: make([]Item, 0, capacity), capacity: capacity}
}

func (l *List) Len() int      { return len(l.items) }
func (l *List) Capacity() int { return l.capacity }

func (l *List) Items() []Item {
	return append([]Item(nil), l.items...)
}

func (l *List) At(i int) (Item, bool) {
	if i < 0 || i >= len(l.items) {
		return Item{}, false
	}
	return l.items[i], true
}

func (l *List) IndexOf(id ID) int {
	for i, item := range l.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (l *List) Contains(id ID) bool {
	return l.IndexOf(id) >= 0
}

// Replace discards the current contents and loads items, newest first,
// keeping at most capacity of them. The items that did not fit are returned.
func (l *List) Replace(items []Item) []Item {
	batch, dropped := l.admit(items, false)
	if len(batch) > l.capacity {
		dropped = append(dropped, batch[l.capacity:]...)
		batch = batch[:l.capacity]
	}
	l.items = append(make([]Item, 0, l.capacity), batch...)
	return dropped
}

// Merge inserts newItems keeping the list ordered. When the result would
// exceed capacity, exactly the overflow is evicted from the tail of the
// existing list before merging.
func (l *List) Merge(newItems []Item) MergeResult {
	batch, dropped := l.admit(newItems, true)
	if len(batch) == 0 {
		return MergeResult{Dropped: dropped}
	}
	if len(batch) > l.capacity {
		dropped = append(dropped, batch[l.capacity:]...)
		batch = batch[:l.capacity]
	}

	var evicted []Item
	if overflow := len(l.items) + len(batch) - l.capacity; overflow > 0 {
		cut := len(l.items) - overflow
		evicted = append([]Item(nil), l.items[cut:]...)
		l.items = l.items[:cut]
	}

	merged := make([]Item, 0, l.capacity)
	i, j := 0, 0
	for i < len(l.items) && j < len(batch) {
		// Existing items win ties: they arrived first.
		if !batch[j].PublishedAt.After(l.items[i].PublishedAt) {
			merged = append(merged, l.items[i])
			i++
			continue
		}
		merged = append(merged, batch[j])
		j++
	}
	merged = append(merged, l.items[i:]...)
	merged = append(merged, batch[j:]...)
	l.items = merged

	return MergeResult{Inserted: batch, Evicted: evicted, Dropped: dropped}
}

// Remove takes the item out of the list and reports where it was.
func (l *List) Remove(id ID) (Item, int, bool) {
	idx := l.IndexOf(id)
	if idx < 0 {
		return Item{}, -1, false
	}
	item := l.items[idx]
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	return item, idx, true
}

// Restore puts back an item previously taken out by Remove. The recorded
// index is used when it still respects the ordering, otherwise the item
// goes after every item that is at least as new.
func (l *List) Restore(item Item, index int) MergeResult {
	if l.Contains(item.ID) {
		return MergeResult{Dropped: []Item{item}}
	}
	if !l.fitsAt(item, index) {
		index = len(l.items)
		for i, existing := range l.items {
			if existing.PublishedAt.Before(item.PublishedAt) {
				index = i
				break
			}
		}
	}

	l.items = append(l.items, Item{})
	copy(l.items[index+1:], l.items[index:])
	l.items[index] = item

	res := MergeResult{Inserted: []Item{item}}
	if overflow := len(l.items) - l.capacity; overflow > 0 {
		cut := len(l.items) - overflow
		res.Evicted = append([]Item(nil), l.items[cut:]...)
		l.items = l.items[:cut]
		if !l.Contains(item.ID) {
			res.Inserted = nil
		}
	}
	return res
}

func (l *List) fitsAt(item Item, index int) bool {
	if index < 0 || index > len(l.items) {
		return false
	}
	if index > 0 && l.items[index-1].PublishedAt.Before(item.PublishedAt) {
		return false
	}
	if index < len(l.items) && l.items[index].PublishedAt.After(item.PublishedAt) {
		return false
	}
	return true
}

// admit drops duplicates (within the batch and, when checkExisting is set,
// against the list) and returns the rest sorted newest first.
func (l *List) admit(items []Item, checkExisting bool) ([]Item, []Item) {
	seen := make(map[ID]struct{}, len(items)+len(l.items))
	if checkExisting {
		for _, item := range l.items {
			seen[item.ID] = struct{}{}
		}
	}
	batch := make([]Item, 0, len(items))
	var dropped []Item
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			dropped = append(dropped, item)
			continue
		}
		seen[item.ID] = struct{}{}
		batch = append(batch, item)
	}
	SortNewestFirst(batch)
	return batch, dropped
}
