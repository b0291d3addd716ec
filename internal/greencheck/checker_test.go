package greencheck

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"greenweb/internal/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	rows     map[string]domain.GreenDomain
	ipMatch  map[netip.Addr]*Match
	asnMatch map[uint32]*Match
	checks   []domain.Greencheck
	deleted  []string

	tableReads atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:     make(map[string]domain.GreenDomain),
		ipMatch:  make(map[netip.Addr]*Match),
		asnMatch: make(map[uint32]*Match),
	}
}

func (s *fakeStore) GreenDomain(_ context.Context, url string, maxAge time.Duration) (*domain.GreenDomain, error) {
	s.tableReads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[url]
	if !ok {
		return nil, nil
	}
	if maxAge > 0 && time.Since(row.Modified) > maxAge {
		return nil, nil
	}
	return &row, nil
}

func (s *fakeStore) GreenDomains(ctx context.Context, urls []string, maxAge time.Duration) (map[string]domain.GreenDomain, error) {
	out := make(map[string]domain.GreenDomain)
	for _, url := range urls {
		row, _ := s.GreenDomain(ctx, url, maxAge)
		if row != nil {
			out[url] = *row
		}
	}
	return out, nil
}

func (s *fakeStore) SaveGreenDomain(_ context.Context, row domain.GreenDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.URL] = row
	return nil
}

func (s *fakeStore) DeleteGreenDomain(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, url)
	s.deleted = append(s.deleted, url)
	return nil
}

func (s *fakeStore) MatchIP(_ context.Context, addr netip.Addr) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ipMatch[addr], nil
}

func (s *fakeStore) MatchASN(_ context.Context, number uint32) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asnMatch[number], nil
}

func (s *fakeStore) LogCheck(_ context.Context, check domain.Greencheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check)
	return nil
}

func (s *fakeStore) checkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checks)
}

type fakeResolver struct {
	addrs map[string][]netip.Addr
	calls atomic.Int32
	delay time.Duration
}

func (r *fakeResolver) LookupAddrs(_ context.Context, host string) ([]netip.Addr, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	addrs, ok := r.addrs[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

type fakeASN map[netip.Addr]uint32

func (f fakeASN) LookupASN(addr netip.Addr) (uint32, error) {
	return f[addr], nil
}

var greenProvider = &domain.Provider{ID: 7, Name: "Leafy", Website: "https://leafy.example", Partner: "Gold"}

func TestPerformFullLookupMatchesIPRange(t *testing.T) {
	store := newFakeStore()
	addr := netip.MustParseAddr("192.0.2.10")
	store.ipMatch[addr] = &Match{Type: domain.MatchTypeIP, ID: 3, ProviderID: 7, Provider: greenProvider}
	resolver := &fakeResolver{addrs: map[string][]netip.Addr{"leafy.example": {addr}}}

	checker := New(store, resolver, nil)
	result, err := checker.PerformFullLookup(context.Background(), "https://leafy.example/")
	if err != nil {
		t.Fatalf("PerformFullLookup: %v", err)
	}

	if !result.Green || result.HostedByID != 7 || result.MatchType != domain.MatchTypeIP || result.MatchID != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.IP != "192.0.2.10" {
		t.Fatalf("ip = %q, want 192.0.2.10", result.IP)
	}
	if _, ok := store.rows["leafy.example"]; !ok {
		t.Fatal("green result was not stored in the green domain table")
	}
	if store.checkCount() != 1 {
		t.Fatalf("logged %d checks, want 1", store.checkCount())
	}
}

func TestPerformFullLookupFallsBackToASN(t *testing.T) {
	store := newFakeStore()
	addr := netip.MustParseAddr("2001:db8::10")
	store.asnMatch[64500] = &Match{Type: domain.MatchTypeASN, ID: 9, ProviderID: 7, Provider: greenProvider}
	resolver := &fakeResolver{addrs: map[string][]netip.Addr{"as.example": {addr}}}

	checker := New(store, resolver, fakeASN{addr: 64500})
	result, err := checker.PerformFullLookup(context.Background(), "as.example")
	if err != nil {
		t.Fatalf("PerformFullLookup: %v", err)
	}
	if !result.Green || result.MatchType != domain.MatchTypeASN || result.MatchID != 9 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestPerformFullLookupGreyIsNotStored(t *testing.T) {
	store := newFakeStore()
	store.rows["grey.example"] = domain.GreenDomain{URL: "grey.example", Green: true, Modified: time.Now().Add(-100 * 24 * time.Hour)}
	resolver := &fakeResolver{addrs: map[string][]netip.Addr{"grey.example": {netip.MustParseAddr("203.0.113.5")}}}

	checker := New(store, resolver, fakeASN{})
	result, err := checker.PerformFullLookup(context.Background(), "grey.example")
	if err != nil {
		t.Fatalf("PerformFullLookup: %v", err)
	}
	if result.Green {
		t.Fatalf("expected grey result, got %+v", result)
	}
	if _, ok := store.rows["grey.example"]; ok {
		t.Fatal("stale green row should be dropped once the domain checks grey")
	}
	if store.checkCount() != 1 {
		t.Fatalf("grey lookups are logged too, got %d log rows", store.checkCount())
	}
}

func TestPerformFullLookupUnresolvableIsGrey(t *testing.T) {
	store := newFakeStore()
	checker := New(store, &fakeResolver{}, nil)

	result, err := checker.PerformFullLookup(context.Background(), "nowhere.invalid")
	if err != nil {
		t.Fatalf("unresolvable domain returned error: %v", err)
	}
	if result.Green || result.IP != "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestPerformFullLookupMissingProvider(t *testing.T) {
	store := newFakeStore()
	addr := netip.MustParseAddr("192.0.2.99")
	store.ipMatch[addr] = &Match{Type: domain.MatchTypeIP, ID: 4, ProviderID: 404}
	resolver := &fakeResolver{addrs: map[string][]netip.Addr{"orphan.example": {addr}}}

	_, err := New(store, resolver, nil).PerformFullLookup(context.Background(), "orphan.example")
	if !errors.Is(err, ErrMissingProvider) {
		t.Fatalf("error = %v, want ErrMissingProvider", err)
	}
}

func TestPerformFullLookupArchivedProviderNeverGreen(t *testing.T) {
	store := newFakeStore()
	addr := netip.MustParseAddr("192.0.2.50")
	archived := &domain.Provider{ID: 8, Name: "Gone", Archived: true}
	store.ipMatch[addr] = &Match{Type: domain.MatchTypeIP, ID: 5, ProviderID: 8, Provider: archived}
	resolver := &fakeResolver{addrs: map[string][]netip.Addr{"archived.example": {addr}}}

	result, err := New(store, resolver, nil).PerformFullLookup(context.Background(), "archived.example")
	if err != nil {
		t.Fatalf("PerformFullLookup: %v", err)
	}
	if result.Green {
		t.Fatalf("archived provider produced a green result: %+v", result)
	}
}

func TestCheckUsesTiers(t *testing.T) {
	store := newFakeStore()
	store.rows["cached.example"] = domain.GreenDomain{URL: "cached.example", Green: true, HostedByID: 7, HostedBy: "Leafy", MatchType: domain.MatchTypeIP, Modified: time.Now()}
	resolver := &fakeResolver{addrs: map[string][]netip.Addr{}}

	checker := New(store, resolver, nil, WithMaxAge(func() time.Duration { return 24 * time.Hour }))
	ctx := context.Background()

	first, err := checker.Check(ctx, "cached.example")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !first.Green || !first.Cached {
		t.Fatalf("expected cached green result from the table, got %+v", first)
	}
	if resolver.calls.Load() != 0 {
		t.Fatal("table hit must not resolve DNS")
	}

	if _, err := checker.Check(ctx, "CACHED.example"); err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if reads := store.tableReads.Load(); reads != 1 {
		t.Fatalf("table read %d times, want 1 (memory tier should answer)", reads)
	}
}

func TestCheckStaleTableRowTriggersFullLookup(t *testing.T) {
	store := newFakeStore()
	store.rows["stale.example"] = domain.GreenDomain{URL: "stale.example", Green: true, Modified: time.Now().Add(-72 * time.Hour)}
	resolver := &fakeResolver{addrs: map[string][]netip.Addr{"stale.example": {netip.MustParseAddr("203.0.113.9")}}}

	checker := New(store, resolver, nil, WithMaxAge(func() time.Duration { return 24 * time.Hour }))
	result, err := checker.Check(context.Background(), "stale.example")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Cached || resolver.calls.Load() != 1 {
		t.Fatalf("stale row should force a full lookup, got %+v with %d resolver calls", result, resolver.calls.Load())
	}
}

func TestCheckSharesConcurrentLookups(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{
		addrs: map[string][]netip.Addr{"busy.example": {netip.MustParseAddr("198.51.100.1")}},
		delay: 50 * time.Millisecond,
	}
	checker := New(store, resolver, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := checker.Check(context.Background(), "busy.example"); err != nil {
				t.Errorf("Check: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := resolver.calls.Load(); calls != 1 {
		t.Fatalf("resolver called %d times, want 1", calls)
	}
}

func TestCheckRejectsInvalidInput(t *testing.T) {
	checker := New(newFakeStore(), &fakeResolver{}, nil)
	if _, err := checker.Check(context.Background(), "   "); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("error = %v, want ErrInvalidDomain", err)
	}
}

func TestForgetAndResetDropMemoryTier(t *testing.T) {
	store := newFakeStore()
	store.rows["cached.example"] = domain.GreenDomain{URL: "cached.example", Green: true, HostedByID: 7, MatchType: domain.MatchTypeIP, Modified: time.Now()}
	checker := New(store, &fakeResolver{addrs: map[string][]netip.Addr{}}, nil)
	ctx := context.Background()

	if _, err := checker.Check(ctx, "cached.example"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	checker.Forget("https://cached.example/path")
	if _, err := checker.Check(ctx, "cached.example"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if reads := store.tableReads.Load(); reads != 2 {
		t.Fatalf("table read %d times after Forget, want 2", reads)
	}

	checker.Reset()
	if _, err := checker.Check(ctx, "cached.example"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if reads := store.tableReads.Load(); reads != 3 {
		t.Fatalf("table read %d times after Reset, want 3", reads)
	}
}
