package state

import "github.com/glabrego/newsdesk-cli/internal/feed"

func ClampCursor(cursor, size int) int {
	if size <= 0 {
		return 0
	}
	if cursor >= size {
		return size - 1
	}
	if cursor < 0 {
		return 0
	}
	return cursor
}

func PageStep(height int, hasBanner bool) int {
	if height <= 0 {
		return 10
	}
	headerLines := 6
	if hasBanner {
		headerLines += 2
	}
	step := height - headerLines
	if step < 3 {
		step = 3
	}
	return step
}

func CenteredWindow(totalRows, cursor, height int) (int, int) {
	if totalRows <= 0 {
		return 0, 0
	}
	if height <= 0 || totalRows <= height {
		return 0, totalRows
	}
	cursor = ClampCursor(cursor, totalRows)
	start := cursor - height/2
	if start < 0 {
		start = 0
	}
	maxStart := totalRows - height
	if start > maxStart {
		start = maxStart
	}
	return start, start + height
}

func IndexByID(ids []feed.ID, id feed.ID) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}

// FollowAnchor keeps the cursor on the anchored item after the list changed
// under it. When the anchor is gone the cursor stays at the same position,
// clamped to the new size.
func FollowAnchor(ids []feed.ID, anchor feed.ID, cursor int) int {
	if anchor != "" {
		if idx := IndexByID(ids, anchor); idx >= 0 {
			return idx
		}
	}
	return ClampCursor(cursor, len(ids))
}
