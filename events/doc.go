// Package events carries execution progress out of the engine.
//
// The engine never blocks on delivery: notifications go through a
// buffered broadcaster, failed publishes land in a bounded retry
// queue, and a background loop drains it with rate-limited attempts.
package events
