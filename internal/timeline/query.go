package timeline

import "lifestory/internal/models"

// GetItems returns items matching filter, newest first.
func (s *Store) GetItems(filter models.ItemFilter) []models.TimelineItem {
	s.mu.Lock()
	all := s.sortedItemsLocked()
	s.mu.Unlock()

	out := make([]models.TimelineItem, 0, len(all))
	for _, item := range all {
		if filter.Match(item) {
			out = append(out, item)
		}
	}
	return out
}

// GetItem returns a copy of the item with the given id.
func (s *Store) GetItem(itemID string) (models.TimelineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return models.TimelineItem{}, false
	}
	return *item, true
}

// ResolveID follows re-keying from a temporary id to the current id.
func (s *Store) ResolveID(itemID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(s.aliases); i++ {
		next, ok := s.aliases[itemID]
		if !ok {
			break
		}
		itemID = next
	}
	return itemID
}

// GetStats counts items per status, items in the book and queued retries.
func (s *Store) GetStats() models.TimelineStats {
	return computeStats(s.State())
}

func computeStats(state models.TimelineState) models.TimelineStats {
	stats := models.TimelineStats{
		Total:          len(state.Items),
		ByStatus:       make(map[models.ItemStatus]int, len(models.AllStatuses)),
		RetryQueueSize: len(state.RetryQueue),
	}
	for _, status := range models.AllStatuses {
		stats.ByStatus[status] = 0
	}
	for _, item := range state.Items {
		stats.ByStatus[item.Status]++
		if item.AddToBook {
			stats.InBook++
		}
	}
	return stats
}
