/*
Package session serializes access to conversation sessions.

A Manager wraps a StateStore so that the load, turn and save of one session
never interleave with another turn of the same session, within a process
(reference-counted mutexes) and optionally across replicas (a
DistributedLocker such as the Redis adapter).
*/
package session
