package models

// TimelineState is the snapshot delivered to subscribers after every mutation.
type TimelineState struct {
	Items       []TimelineItem
	RetryQueue  []RetryQueueEntry
	Initialized bool
}

// ItemFilter narrows GetItems results. Nil fields match everything.
type ItemFilter struct {
	Type      *ItemType
	Status    *ItemStatus
	AddToBook *bool
}

// Match reports whether item satisfies every set field of the filter.
func (f ItemFilter) Match(item TimelineItem) bool {
	if f.Type != nil && item.Type != *f.Type {
		return false
	}
	if f.Status != nil && item.Status != *f.Status {
		return false
	}
	if f.AddToBook != nil && item.AddToBook != *f.AddToBook {
		return false
	}
	return true
}

// TimelineStats summarises the store contents.
type TimelineStats struct {
	Total          int                `json:"total"`
	ByStatus       map[ItemStatus]int `json:"byStatus"`
	InBook         int                `json:"inBook"`
	RetryQueueSize int                `json:"retryQueueSize"`
}
