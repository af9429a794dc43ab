package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunOnce(t *testing.T) {
	var order []string
	task := func(name string, n int, err error) Task {
		return Task{Name: name, Run: func(ctx context.Context) (int, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("%s: expected a deadline", name)
			}
			order = append(order, name)
			return n, err
		}}
	}

	j := New(time.Second, nil,
		task("storage", 3, nil),
		task("broken", 7, errors.New("db down")),
		task("workspaces", 2, nil),
	)
	if got := j.RunOnce(context.Background()); got != 5 {
		t.Errorf("removed: got %d, want 5", got)
	}
	if len(order) != 3 || order[2] != "workspaces" {
		t.Errorf("tasks ran: %v", order)
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	j := New(0, nil)
	if err := j.Start("every now and then"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartStop(t *testing.T) {
	j := New(0, nil, Task{Name: "noop", Run: func(context.Context) (int, error) { return 0, nil }})
	if err := j.Start("@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n := len(j.cron.Entries()); n != 1 {
		t.Errorf("entries: got %d, want 1", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
