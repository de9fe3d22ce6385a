/*
Package fable is an embeddable engine for branching, choice-driven stories.

A story is a graph of nodes. Each node carries text and a list of choices,
and each choice points at another node. The engine keeps the reader's
position, a free-form bag of flags and the visited path, and decides which
choices are offered and which may be taken.

# Concept

Two independent gates apply to every choice:

  - Condition: a small expression over flags, state and host data
    (e.g. "flags.gold >= 10 && !flags.cursed"). A choice whose condition is
    false is hidden.
  - Validation: an ordered pipeline of rules (flag, time, inventory and
    enabled requirements, plus any rules the host registers). A visible
    choice that fails a rule is shown as locked and cannot be taken.

Around that core the engine saves and loads versioned envelopes, keeps named
checkpoints, offers undo and redo, and can autosave after selected actions.
Storage is pluggable through ports.Storage; adapters for memory, files,
Redis, SQLite and Postgres live under pkg/adapters.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/fable"
		"github.com/aretw0/fable/pkg/domain"
	)

	func main() {
		story, err := domain.NewStory("gate",
			domain.Node{ID: "gate", Text: "A locked gate.", Choices: []domain.Choice{
				{Text: "Pick the lock", NextNodeID: "garden", Condition: "flags.lockpick"},
				{Text: "Walk away", NextNodeID: "road"},
			}},
			domain.Node{ID: "garden", Text: "A quiet garden."},
			domain.Node{ID: "road", Text: "The long road home."},
		)
		if err != nil {
			log.Fatal(err)
		}

		eng, err := fable.New(story)
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		for _, c := range eng.AvailableChoices(ctx) {
			fmt.Println(c.Text)
		}
		if _, err := eng.MakeChoice(ctx, 0); err != nil {
			log.Fatal(err)
		}
	}

An Engine is safe for concurrent use; calls are serialized.
*/
package fable
