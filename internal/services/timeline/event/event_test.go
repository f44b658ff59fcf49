package event

import (
	"context"
	"errors"
	"testing"

	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
)

func TestEventNameAndRoom(t *testing.T) {
	task := Event{Action: ActionMove, ObjectType: domain.ObjectTask, Data: domain.Task{ID: "t1", ProjectID: "p1"}}
	if task.Name() != "move:task" {
		t.Fatalf("expected move:task, got %q", task.Name())
	}
	if task.Room() != "p1" {
		t.Fatalf("expected room p1, got %q", task.Room())
	}

	project := Event{Action: ActionUpdate, ObjectType: domain.ObjectProject, Data: domain.Project{ID: "p9"}}
	if project.Room() != "p9" {
		t.Fatalf("expected project room to be its id, got %q", project.Room())
	}
	if (Event{}).Room() != "" {
		t.Fatal("expected empty room for event without data")
	}
}

func TestPublishOrderAndIsolation(t *testing.T) {
	bus := NewBus(nil)
	var calls []string
	bus.Subscribe("create:task", func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	bus.Subscribe("create:task", func(context.Context, Event) error {
		panic("listener exploded")
	})
	bus.Subscribe(All, func(context.Context, Event) error {
		calls = append(calls, "all")
		return nil
	})
	bus.Subscribe("create:task", func(context.Context, Event) error {
		calls = append(calls, "third")
		return nil
	})
	bus.Subscribe("delete:task", func(context.Context, Event) error {
		calls = append(calls, "wrong")
		return nil
	})

	bus.Publish(context.Background(), Event{Action: ActionCreate, ObjectType: domain.ObjectTask, Data: domain.Task{ID: "t", ProjectID: "p"}})

	want := []string{"first", "third", "all"}
	if len(calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, calls)
		}
	}
}

func TestListenersMayPublish(t *testing.T) {
	bus := NewBus(nil)
	var nested bool
	bus.Subscribe("create:task", func(ctx context.Context, evt Event) error {
		bus.Publish(ctx, Event{Action: ActionCreate, ObjectType: domain.ObjectActivity, Data: domain.Activity{ID: "a", ProjectID: "p"}})
		return nil
	})
	bus.Subscribe("create:activity", func(context.Context, Event) error {
		nested = true
		bus.Subscribe("create:activity", func(context.Context, Event) error { return nil })
		return nil
	})

	bus.Publish(context.Background(), Event{Action: ActionCreate, ObjectType: domain.ObjectTask, Data: domain.Task{ID: "t", ProjectID: "p"}})
	if !nested {
		t.Fatal("expected nested publish to reach its listener")
	}
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	bus.Subscribe("x", func(context.Context, Event) error { return nil })
	bus.Publish(context.Background(), Event{})
}
