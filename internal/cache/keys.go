package cache

import "fmt"

// Keys are namespaced by entity type and id. Each class has its own TTL,
// configured in config.CacheConfig: availability must stay fresh (seconds),
// event details and search can lag (minutes), categories churn slowly.

func AvailabilityKey(eventID string) string {
	return fmt.Sprintf("alloc:availability:%s", eventID)
}

func EventKey(eventID string) string {
	return fmt.Sprintf("alloc:event:%s", eventID)
}

func SearchKey(query string) string {
	return fmt.Sprintf("alloc:search:%s", query)
}

func CategoriesKey() string {
	return "alloc:categories"
}

func PositionKey(entryID string) string {
	return fmt.Sprintf("alloc:position:%s", entryID)
}
