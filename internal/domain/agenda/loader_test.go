package agenda

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLoader_DeliversLatestSelection(t *testing.T) {
	delivered := make(chan *DayGrid, 1)
	l := NewLoader(
		func(ctx context.Context, date time.Time, _ uuid.UUID, _ Scope) (*DayGrid, error) {
			return &DayGrid{Date: isoDate(date), Scope: ScopeProfessional}, nil
		},
		func(grid *DayGrid, err error) {
			if err != nil {
				t.Errorf("unexpected deliver error: %v", err)
			}
			delivered <- grid
		},
	)

	l.Select(context.Background(), monday, uuid.New(), ScopeProfessional)

	select {
	case grid := <-delivered:
		if grid.Date != "2024-03-04" {
			t.Errorf("delivered date = %s, want 2024-03-04", grid.Date)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("grid was never delivered")
	}
	if l.Generation() != 1 {
		t.Errorf("generation = %d, want 1", l.Generation())
	}
}

func TestLoader_StaleFetchDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	delivered := make(chan *DayGrid, 2)

	var once sync.Once
	l := NewLoader(
		func(ctx context.Context, date time.Time, _ uuid.UUID, _ Scope) (*DayGrid, error) {
			if isoDate(date) == "2024-03-04" {
				once.Do(func() { close(firstStarted) })
				<-releaseFirst
			}
			return &DayGrid{Date: isoDate(date), Scope: ScopeProfessional}, nil
		},
		func(grid *DayGrid, err error) {
			delivered <- grid
		},
	)

	pid := uuid.New()
	l.Select(context.Background(), monday, pid, ScopeProfessional)
	<-firstStarted

	// Supersede the slow fetch with a newer date.
	l.Select(context.Background(), monday.AddDate(0, 0, 1), pid, ScopeProfessional)

	select {
	case grid := <-delivered:
		if grid.Date != "2024-03-05" {
			t.Fatalf("delivered %s, want the newer 2024-03-05", grid.Date)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("newer grid was never delivered")
	}

	// Let the slow fetch finish; its result must be dropped.
	close(releaseFirst)
	select {
	case grid := <-delivered:
		t.Fatalf("stale grid %s was delivered", grid.Date)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoader_CancelsSupersededContext(t *testing.T) {
	cancelled := make(chan struct{})
	started := make(chan struct{})

	var once sync.Once
	l := NewLoader(
		func(ctx context.Context, date time.Time, _ uuid.UUID, _ Scope) (*DayGrid, error) {
			if isoDate(date) == "2024-03-04" {
				once.Do(func() { close(started) })
				<-ctx.Done()
				close(cancelled)
				return nil, ctx.Err()
			}
			return &DayGrid{Date: isoDate(date)}, nil
		},
		func(*DayGrid, error) {},
	)

	pid := uuid.New()
	l.Select(context.Background(), monday, pid, ScopeProfessional)
	<-started
	l.Select(context.Background(), monday.AddDate(0, 0, 1), pid, ScopeProfessional)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch context was never cancelled")
	}
}
