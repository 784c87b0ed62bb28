// Package health provides composable probes and the liveness and readiness
// endpoints served on both the public and admin listeners.
//
// Probes combine with [All]; [Fixed] gives a static result.
// [Ping] turns a dependency's ping into a bounded probe with a reason that
// is safe to show to clients.
//
// [ShutdownGate] fails readiness as soon as shutdown starts so load
// balancers stop routing new requests while in-flight ones drain.
package health
