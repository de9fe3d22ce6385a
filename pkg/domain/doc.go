/*
Package domain contains the core data model of the Fable narrative engine.

It defines the story graph (Nodes and Choices), the reader's State, and the
snapshot records derived from it (Checkpoints, HistoryEntries and the
SerializedState envelope). This package is kept pure and free of I/O so it can
be shared by the engine, the persistence layer and every adapter.

# Key Entities

  - Story: the read-only graph input, indexed by node ID.
  - Node: a single narrative beat with text and outgoing choices.
  - Choice: an option that moves the reader to another node and may alter flags.
  - State: where the reader is, which flags are set and how they got there.
  - SerializedState: the versioned, integrity-checkable envelope used for save/load.
*/
package domain
