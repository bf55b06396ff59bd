package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackzampolin/temario/internal/types"
)

func TestMemory_Contract(t *testing.T) {
	runContract(t, NewMemory())
}

func TestMemory_SetError(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.SetError("ListAreas", boom)

	if _, err := m.ListAreas(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("ListAreas() error = %v, want injected", err)
	}
	m.SetError("ListAreas", nil)
	if _, err := m.ListAreas(context.Background()); err != nil {
		t.Fatalf("ListAreas() after clear error = %v", err)
	}
}

func TestMemory_FailAfterWrites(t *testing.T) {
	m := NewMemory()
	boom := errors.New("disk full")
	m.FailAfterWrites(2, boom)

	pages := []types.Page{
		{AreaID: "a", PageNumber: 1}, {AreaID: "a", PageNumber: 2}, {AreaID: "a", PageNumber: 3},
	}
	err := m.UpsertPages(context.Background(), pages)
	if !errors.Is(err, boom) {
		t.Fatalf("UpsertPages() error = %v, want injected after 2 writes", err)
	}
	if n, _ := m.CountPages(context.Background(), "a"); n != 2 {
		t.Errorf("CountPages() = %d, want 2 written before failure", n)
	}
}

func TestRaiseCompleted(t *testing.T) {
	tests := []struct {
		name                    string
		current, results, total int
		want                    int
	}{
		{"grows", 1, 2, 5, 2},
		{"capped at total", 4, 7, 5, 5},
		{"never decreases", 3, 1, 5, 3},
		{"unchanged", 2, 2, 5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := raiseCompleted(tt.current, tt.results, tt.total); got != tt.want {
				t.Errorf("raiseCompleted(%d, %d, %d) = %d, want %d", tt.current, tt.results, tt.total, got, tt.want)
			}
		})
	}
}
