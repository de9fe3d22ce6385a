package fable_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/pkg/adapters/memory"
	"github.com/aretw0/fable/pkg/domain"
)

func gateLoader() *memory.Loader {
	loader, err := memory.NewFromNodes("gate",
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
	return loader
}

// ExampleNew shows conditions hiding a choice until a flag is set.
func ExampleNew() {
	ctx := context.Background()
	engine, err := fable.NewFromLoader(ctx, gateLoader())
	if err != nil {
		log.Fatal(err)
	}

	for _, c := range engine.AvailableChoices(ctx) {
		fmt.Println(c.Text)
	}

	if err := engine.SetFlag(ctx, "lockpick", true); err != nil {
		log.Fatal(err)
	}
	node, err := engine.MakeChoice(ctx, 0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(node.Text)
	// Output:
	// Walk away
	// A quiet garden.
}

// ExampleEngine_Undo shows stepping back over a choice.
func ExampleEngine_Undo() {
	ctx := context.Background()
	engine, err := fable.NewFromLoader(ctx, gateLoader())
	if err != nil {
		log.Fatal(err)
	}

	if _, err := engine.MakeChoice(ctx, 0); err != nil {
		log.Fatal(err)
	}
	fmt.Println(engine.State().CurrentNodeID)

	res := engine.Undo(ctx)
	fmt.Println(res.Success, engine.State().CurrentNodeID)
	// Output:
	// road
	// true gate
}

// ExampleRunner shows the line-oriented play loop.
func ExampleRunner() {
	ctx := context.Background()
	engine, err := fable.NewFromLoader(ctx, gateLoader())
	if err != nil {
		log.Fatal(err)
	}

	runner := &fable.Runner{
		Input:    strings.NewReader("1\n"),
		Output:   os.Stdout,
		Headless: true,
	}
	if err := runner.Run(ctx, engine); err != nil {
		log.Fatal(err)
	}
	// Output:
	// A locked gate.
	//   1. Walk away
	// The long road home.
	// The End.
}
