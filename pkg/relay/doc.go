// Package relay implements the chat relay server core: the TCP
// acceptor, the bounded worker-lane pool, per-connection sessions, the
// shared session registry and the record router.
//
// Concurrency model: one acceptor plus up to N lanes (N = host ideal
// concurrency, minimum 1). Every session is owned by exactly one lane;
// record routing for a session and every write to its socket run as
// closures posted to that lane's queue. Cross-session delivery is
// therefore always asynchronous: the sender's routing call returns as
// soon as the write is scheduled on the target's lane.
//
// Locking discipline: the registry lock and the per-session field
// locks are never nested: registry reads snapshot the session list
// first and inspect session fields afterwards.
package relay
