/*
Package session manages many concurrent readers of one story.

Each session owns a fable.Engine. The manager serializes access per session
with reference-counted locks, optionally coordinates replicas through a
ports.DistributedLocker, and persists every session into a namespace of a
shared ports.Storage so checkpoints of different sessions never collide.
*/
package session
