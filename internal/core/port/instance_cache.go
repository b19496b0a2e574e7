package port

// InstanceCache is a process-local, bounded key-value cache with
// least-recently-used eviction. It is a disposable acceleration structure: a
// miss must always be recoverable by reconstructing the value from durable
// state, and nothing stored here is ever the system of record.
type InstanceCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Has(key string) bool
	Len() int
	Clear()
}
