/*
Package persistence snapshots and restores engine state.

The Manager produces versioned, optionally checksummed save envelopes,
loads them back after checking story identity, engine version compatibility
and integrity, and keeps a bounded collection of named checkpoints. It is
storage agnostic: a ports.Storage can be attached for durable saves and
checkpoint write-through.

Load failures are reported as LoadResult values rather than errors, so a
caller can attempt a load speculatively and fall back.
*/
package persistence
