package pagination

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu    sync.Mutex
	size  int
	saved []int
	err   error
	// beforeSave runs ahead of each write, outside the lock
	beforeSave func(n int)
}

func (s *memStore) ItemsPerPage(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *memStore) SetItemsPerPage(ctx context.Context, n int) error {
	if s.beforeSave != nil {
		s.beforeSave(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, n)
	if s.err != nil {
		return s.err
	}
	s.size = n
	return nil
}

func (s *memStore) savedSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.saved...)
}

func numbers(n int) []int {
	result := make([]int, n)
	for i := range result {
		result[i] = i + 1
	}
	return result
}

func TestPaginator_Totals(t *testing.T) {
	tests := []struct {
		count int
		pages int
	}{
		{0, 0},
		{1, 1},
		{10, 1},
		{11, 2},
		{25, 3},
	}

	for _, tt := range tests {
		list := numbers(tt.count)
		p := New(func() []int { return list }, nil)
		if p.TotalItems() != tt.count {
			t.Errorf("Expected %d items, got %d", tt.count, p.TotalItems())
		}
		if p.TotalPages() != tt.pages {
			t.Errorf("count %d: expected %d pages, got %d", tt.count, tt.pages, p.TotalPages())
		}
	}
}

func TestPaginator_Window(t *testing.T) {
	list := numbers(25)
	p := New(func() []int { return list }, nil)

	if got := p.Items(); len(got) != 10 || got[0] != 1 || got[9] != 10 {
		t.Errorf("Unexpected first page %v", got)
	}
	if !p.GoToPage(3) {
		t.Fatal("Expected page 3 to be reachable")
	}
	if got := p.Items(); len(got) != 5 || got[0] != 21 || got[4] != 25 {
		t.Errorf("Unexpected last page %v", got)
	}
}

func TestPaginator_WindowTracksSource(t *testing.T) {
	list := numbers(15)
	p := New(func() []int { return list }, nil)
	p.GoToPage(2)

	list = list[:3]
	if got := p.Items(); len(got) != 0 {
		t.Errorf("Expected empty window past the end, got %v", got)
	}
	p.CheckPageBounds()
	if got := p.Items(); len(got) != 3 {
		t.Errorf("Expected 3 items after bounds check, got %v", got)
	}
}

func TestPaginator_Navigation(t *testing.T) {
	list := numbers(30)
	p := New(func() []int { return list }, nil)

	if p.HasPreviousPage() {
		t.Error("Expected no previous page on page 1")
	}
	if p.PreviousPage() {
		t.Error("Expected PreviousPage to do nothing on page 1")
	}
	if !p.NextPage() || !p.NextPage() {
		t.Fatal("Expected to advance to page 3")
	}
	if p.CurrentPage() != 3 {
		t.Errorf("Expected page 3, got %d", p.CurrentPage())
	}
	if p.HasNextPage() || p.NextPage() {
		t.Error("Expected no page after the last")
	}
	if !p.PreviousPage() || p.CurrentPage() != 2 {
		t.Errorf("Expected page 2, got %d", p.CurrentPage())
	}
	p.ResetPage()
	if p.CurrentPage() != 1 {
		t.Errorf("Expected reset to page 1, got %d", p.CurrentPage())
	}
}

func TestPaginator_GoToPageOutOfRange(t *testing.T) {
	list := numbers(15)
	p := New(func() []int { return list }, nil)
	p.GoToPage(2)

	for _, n := range []int{0, -1, 3, 100} {
		if p.GoToPage(n) {
			t.Errorf("Expected page %d to be rejected", n)
		}
		if p.CurrentPage() != 2 {
			t.Errorf("Expected page to stay 2, got %d", p.CurrentPage())
		}
	}

	empty := New(func() []int { return nil }, nil)
	if empty.GoToPage(1) {
		t.Error("Expected no pages to go to on an empty source")
	}
}

func TestPaginator_SetItemsPerPage(t *testing.T) {
	list := numbers(120)
	store := &memStore{size: 10}
	p := New(func() []int { return list }, store)
	p.GoToPage(3)

	err := p.SetItemsPerPage(context.Background(), 25)
	if !errors.Is(err, ErrInvalidItemsPerPage) {
		t.Errorf("Expected ErrInvalidItemsPerPage, got %v", err)
	}
	if p.ItemsPerPage() != 10 || p.CurrentPage() != 3 {
		t.Errorf("Expected no state change, got size %d page %d", p.ItemsPerPage(), p.CurrentPage())
	}

	if err := p.SetItemsPerPage(context.Background(), 50); err != nil {
		t.Fatalf("SetItemsPerPage failed: %v", err)
	}
	if p.ItemsPerPage() != 50 {
		t.Errorf("Expected size 50, got %d", p.ItemsPerPage())
	}
	if p.CurrentPage() != 1 {
		t.Errorf("Expected reset to page 1, got %d", p.CurrentPage())
	}
	if p.TotalPages() != 3 {
		t.Errorf("Expected 3 pages, got %d", p.TotalPages())
	}

	p.Wait()
	if saved := store.savedSizes(); len(saved) != 1 || saved[0] != 50 {
		t.Errorf("Expected one save of 50, got %v", saved)
	}
}

func TestPaginator_SetSameSizeIsNoop(t *testing.T) {
	list := numbers(40)
	store := &memStore{size: 10}
	p := New(func() []int { return list }, store)
	p.GoToPage(2)

	if err := p.SetItemsPerPage(context.Background(), 10); err != nil {
		t.Fatalf("SetItemsPerPage failed: %v", err)
	}
	p.Wait()
	if p.CurrentPage() != 2 {
		t.Errorf("Expected page to stay 2, got %d", p.CurrentPage())
	}
	if saved := store.savedSizes(); len(saved) != 0 {
		t.Errorf("Expected no save, got %v", saved)
	}
}

func TestPaginator_SavesKeepCallOrder(t *testing.T) {
	list := numbers(200)
	reached := make(chan struct{})
	release := make(chan struct{})
	store := &memStore{size: 10}
	store.beforeSave = func(n int) {
		if n == 20 {
			close(reached)
			<-release
		}
	}
	p := New(func() []int { return list }, store)

	if err := p.SetItemsPerPage(context.Background(), 20); err != nil {
		t.Fatalf("SetItemsPerPage failed: %v", err)
	}
	<-reached
	if err := p.SetItemsPerPage(context.Background(), 50); err != nil {
		t.Fatalf("SetItemsPerPage failed: %v", err)
	}
	close(release)
	p.Wait()

	if persisted := store.ItemsPerPage(context.Background()); persisted != p.ItemsPerPage() {
		t.Errorf("Expected persisted size %d, got %d", p.ItemsPerPage(), persisted)
	}
	if saved := store.savedSizes(); len(saved) != 2 || saved[1] != 50 {
		t.Errorf("Expected saves [20 50], got %v", saved)
	}
}

func TestPaginator_SaveFailureKeepsSize(t *testing.T) {
	list := numbers(40)
	store := &memStore{size: 10, err: errors.New("backend unavailable")}
	p := New(func() []int { return list }, store)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.SetItemsPerPage(ctx, 20); err != nil {
		t.Fatalf("SetItemsPerPage failed: %v", err)
	}
	cancel()
	p.Wait()

	if p.ItemsPerPage() != 20 {
		t.Errorf("Expected local size 20, got %d", p.ItemsPerPage())
	}
	if saved := store.savedSizes(); len(saved) != 1 {
		t.Errorf("Expected a save attempt, got %v", saved)
	}
}

func TestPaginator_LoadItemsPerPage(t *testing.T) {
	list := numbers(100)
	p := New(func() []int { return list }, &memStore{size: 20})
	p.GoToPage(4)

	p.LoadItemsPerPage(context.Background())
	if p.ItemsPerPage() != 20 || p.CurrentPage() != 1 {
		t.Errorf("Expected size 20 on page 1, got size %d page %d", p.ItemsPerPage(), p.CurrentPage())
	}

	bad := New(func() []int { return list }, &memStore{size: 7})
	bad.LoadItemsPerPage(context.Background())
	if bad.ItemsPerPage() != 10 {
		t.Errorf("Expected default size for an invalid stored value, got %d", bad.ItemsPerPage())
	}
}

func TestPaginator_CheckPageBounds(t *testing.T) {
	list := numbers(60)
	p := New(func() []int { return list }, nil)
	p.GoToPage(5)

	list = list[:3]
	p.CheckPageBounds()
	if p.CurrentPage() != 1 {
		t.Errorf("Expected page 1, got %d", p.CurrentPage())
	}

	p.CheckPageBounds()
	if p.CurrentPage() != 1 {
		t.Errorf("Expected bounds check to be idempotent, got %d", p.CurrentPage())
	}
}

func TestPaginator_CheckPageBoundsShrink(t *testing.T) {
	list := numbers(50)
	p := New(func() []int { return list }, nil)
	p.GoToPage(5)

	list = list[:25]
	p.CheckPageBounds()
	if p.CurrentPage() != 3 {
		t.Errorf("Expected clamp to page 3, got %d", p.CurrentPage())
	}

	list = nil
	p.CheckPageBounds()
	if p.CurrentPage() != 3 {
		t.Errorf("Expected empty source to leave the page alone, got %d", p.CurrentPage())
	}
	if p.TotalPages() != 0 {
		t.Errorf("Expected 0 pages, got %d", p.TotalPages())
	}
}
