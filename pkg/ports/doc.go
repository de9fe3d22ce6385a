/*
Package ports defines the driven ports (interfaces) of the fable engine.

These interfaces decouple the core from external implementations, allowing
the engine to work with various storage backends, story sources and lock
providers.

# Key Interfaces

  - Storage: key/value persistence for save envelopes and checkpoints.
  - StoryLoader: produces a story graph (e.g. from a YAML file or the DSL).
  - DistributedLocker: coordinates concurrent session access across replicas.
  - Narrative: the engine surface consumed by transports (HTTP, MCP, CLI).
*/
package ports
