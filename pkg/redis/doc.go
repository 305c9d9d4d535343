// Package redis connects to the Redis server shared by the rate limit
// counters and the per-user billing locks.
package redis
