// Package cache wraps go-redis with string/JSON accessors and a
// read-through cache for pipeline definitions. Cache misses and Redis
// failures degrade to store reads rather than failing requests.
package cache
