package domain

import "fmt"

// KeyPrefix is the reserved Redis key-space prefix for every key this
// system writes. See §3.3 of the design: the schema is normative.
const KeyPrefix = "sitesearch:"

// PendingKey is the pending list for queue q.
func PendingKey(q string) string { return fmt.Sprintf("%squeue:%s", KeyPrefix, q) }

// ProcessingKey is the processing set for queue q.
func ProcessingKey(q string) string { return fmt.Sprintf("%sprocessing:%s", KeyPrefix, q) }

// CompletedKey is the completed set for queue q.
func CompletedKey(q string) string { return fmt.Sprintf("%scompleted:%s", KeyPrefix, q) }

// FailedKey is the failed set for queue q.
func FailedKey(q string) string { return fmt.Sprintf("%sfailed:%s", KeyPrefix, q) }

// TaskMetaKey holds the per-task metadata as one JSON string.
func TaskMetaKey(taskID string) string { return fmt.Sprintf("%stask:meta:%s", KeyPrefix, taskID) }

// StatsKey is the per-queue counters hash.
func StatsKey(q string) string { return fmt.Sprintf("%sstats:%s", KeyPrefix, q) }

// TaskScopedQueueKey names the per-task dedicated queue used by the
// optional SeedDedicated supervisor operation. The Queue Manager treats it
// as a queue name like any other, so the pending list itself lives at
// PendingKey(TaskScopedQueueKey(id)).
func TaskScopedQueueKey(taskID string) string {
	return fmt.Sprintf("%stask:%s:queue", KeyPrefix, taskID)
}

// ContentHashKey is the persister's (url -> latest content hash) secondary
// index, a plain string holding only the hash (no version), consulted by the cleaner's skip-path and by dedup
// invariant checks without a network hop into the persister process.
func ContentHashKey(url string) string {
	return fmt.Sprintf("%scontenthash:%s", KeyPrefix, url)
}

// LastActivityKey records the last time a task on queue q was enqueued,
// dequeued, heartbeated, completed or failed, consumed by the Queue
// Monitor's stall detector.
func LastActivityKey(q string) string {
	return fmt.Sprintf("%slast_activity:%s", KeyPrefix, q)
}

// CleanContentKey caches a url's last-produced clean_content so the cleaner
// can skip reconversion on a content-hash match and still forward a
// populated envelope, leaving the drop decision to the persister.
func CleanContentKey(url string) string {
	return fmt.Sprintf("%scleancontent:%s", KeyPrefix, url)
}
