package crawler

// frontierItem is a pending visit.
type frontierItem struct {
	url      string
	depth    int
	document bool
}

// frontier is the FIFO work queue plus the visited set of one crawl run.
// Enqueue is idempotent: a URL that is queued or visited is never added again.
type frontier struct {
	items   []frontierItem
	head    int
	queued  map[string]struct{}
	visited map[string]struct{}
}

func newFrontier() *frontier {
	return &frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// push appends item and reports whether it was new.
func (f *frontier) push(item frontierItem) bool {
	if _, ok := f.visited[item.url]; ok {
		return false
	}
	if _, ok := f.queued[item.url]; ok {
		return false
	}
	f.queued[item.url] = struct{}{}
	f.items = append(f.items, item)
	return true
}

// pop removes the oldest pending item.
func (f *frontier) pop() (frontierItem, bool) {
	if f.head >= len(f.items) {
		return frontierItem{}, false
	}
	item := f.items[f.head]
	f.items[f.head] = frontierItem{}
	f.head++
	if f.head > 1024 && f.head*2 > len(f.items) {
		f.items = append([]frontierItem(nil), f.items[f.head:]...)
		f.head = 0
	}
	delete(f.queued, item.url)
	return item, true
}

// markVisited records url as fetched or skipped and reports whether it was new.
func (f *frontier) markVisited(url string) bool {
	if _, ok := f.visited[url]; ok {
		return false
	}
	f.visited[url] = struct{}{}
	return true
}

func (f *frontier) isVisited(url string) bool {
	_, ok := f.visited[url]
	return ok
}

func (f *frontier) len() int {
	return len(f.items) - f.head
}
