// Package ratelimit is a fixed-window request limiter keyed by client
// address and route.
//
// Each (client, route) pair owns a counter that resets when its window
// elapses. The store is in-memory and local to one process: it is abuse
// control for a single instance, not a distributed quota. Expired windows
// are dropped lazily on access and by a periodic sweep, and the number of
// tracked pairs is capped so a flood of distinct addresses cannot grow the
// map without bound.
//
// Fixed windows allow up to twice the limit across a window boundary (N at
// the end of one window, N at the start of the next). That is accepted.
package ratelimit
