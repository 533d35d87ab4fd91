package rediskey

import "fmt"

const (
	IdempotencyPrefix     = "picks:idem"
	IdempotencyLockPrefix = "picks:idem:lock"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildIdempotencyKey returns "picks:idem:{method}:{path}:{key}".
func BuildIdempotencyKey(method, path, key string) string {
	return NamespaceKey(IdempotencyPrefix, fmt.Sprintf("%s:%s:%s", method, path, key))
}

// BuildIdempotencyLockKey returns "picks:idem:lock:{method}:{path}:{key}".
func BuildIdempotencyLockKey(method, path, key string) string {
	return NamespaceKey(IdempotencyLockPrefix, fmt.Sprintf("%s:%s:%s", method, path, key))
}
