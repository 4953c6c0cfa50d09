package engine

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
)

func fp(v float64) *float64 { return &v }

// fakeClock hands out a settable instant so stage gates can be crossed
// without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeStorage is an in-memory ports.Storage.
type fakeStorage struct {
	mu          sync.Mutex
	orders      map[string]domain.BetOrder
	settledIDs  map[string]bool
	ledger      domain.DailyRiskLedger
	failPlace   error // returned by RecordPlacement when set
	placements  int
	stageWrites int
	settlements int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		orders:     make(map[string]domain.BetOrder),
		settledIDs: make(map[string]bool),
	}
}

func (s *fakeStorage) RecordPlacement(ctx context.Context, order domain.BetOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPlace != nil {
		return s.failPlace
	}
	s.orders[order.ID] = order
	s.placements++
	s.ledger.BetsPlaced++
	return nil
}

func (s *fakeStorage) UpdateStage(ctx context.Context, orderID string, stage domain.CascadeStage, exchangeRef string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	o.Stage, o.ExchangeRef, o.Price = stage, exchangeRef, price
	s.orders[orderID] = o
	s.stageWrites++
	return nil
}

func (s *fakeStorage) RecordSettlement(ctx context.Context, orderID string, status domain.OrderStatus, matchedSize, matchedPrice float64, matchedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	o.Status, o.MatchedSize, o.MatchedPrice, o.MatchedAt = status, matchedSize, matchedPrice, matchedAt
	s.orders[orderID] = o
	s.settlements++
	return nil
}

func (s *fakeStorage) RecordOutcome(ctx context.Context, orderID string, profit float64, settledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settledIDs[orderID] = true
	s.ledger.ProfitLoss += profit
	s.ledger.LifetimePnL += profit
	return nil
}

func (s *fakeStorage) HasBetOn(ctx context.Context, marketID string, selectionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.MarketID == marketID && o.SelectionID == selectionID && o.Status != domain.StatusFailed {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStorage) OpenOrders(ctx context.Context) ([]domain.BetOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BetOrder
	for _, o := range s.orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStorage) UnsettledOrders(ctx context.Context) ([]domain.BetOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BetOrder
	for _, o := range s.orders {
		if o.MatchedSize > 0 && !s.settledIDs[o.ID] &&
			(o.Status == domain.StatusMatched || o.Status == domain.StatusPartial) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStorage) GetDailyLedger(ctx context.Context, date time.Time) (domain.DailyRiskLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger, nil
}

func (s *fakeStorage) GetLedgers(ctx context.Context) ([]domain.DailyRiskLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []domain.DailyRiskLedger{s.ledger}, nil
}

func (s *fakeStorage) Close() error { return nil }

func (s *fakeStorage) order(id string) domain.BetOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

// fakeExchange scripts exchange behavior per call. Zero value accepts every
// order unmatched.
type fakeExchange struct {
	mu sync.Mutex

	placed   []domain.PlaceOrderRequest
	replaced []replaceCall
	canceled []string

	placeErr   error // returned once by the next PlaceOrder, then cleared
	replaceErr error
	cancelErr  error

	status    domain.OrderReport   // returned by GetOrderStatus
	statusSeq []domain.OrderReport // consumed one per poll before status
	statusErr error
	placeRep  *domain.OrderReport // overrides the default accept report once

	live    []domain.CurrentOrder // returned by ListCurrentOrders
	cleared []domain.ClearedOrder // returned by ClearedOrders

	refSeq int
}

type replaceCall struct {
	marketID, ref   string
	newPrice, stake float64
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		err := f.placeErr
		f.placeErr = nil
		return domain.OrderReport{}, err
	}
	if f.placeRep != nil {
		rep := *f.placeRep
		f.placeRep = nil
		return rep, nil
	}
	f.refSeq++
	return domain.OrderReport{ExchangeRef: refID(f.refSeq), Status: "EXECUTABLE"}, nil
}

func (f *fakeExchange) ReplaceOrder(ctx context.Context, marketID, exchangeRef string, newPrice, stake float64) (domain.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, replaceCall{marketID, exchangeRef, newPrice, stake})
	if f.replaceErr != nil {
		err := f.replaceErr
		f.replaceErr = nil
		return domain.OrderReport{}, err
	}
	f.refSeq++
	return domain.OrderReport{ExchangeRef: refID(f.refSeq), Status: "EXECUTABLE"}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, marketID, exchangeRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, exchangeRef)
	if f.cancelErr != nil {
		err := f.cancelErr
		f.cancelErr = nil
		return err
	}
	return nil
}

func (f *fakeExchange) GetOrderStatus(ctx context.Context, marketID, exchangeRef string) (domain.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		err := f.statusErr
		f.statusErr = nil
		return domain.OrderReport{}, err
	}
	rep := f.status
	if len(f.statusSeq) > 0 {
		rep = f.statusSeq[0]
		f.statusSeq = f.statusSeq[1:]
	}
	if rep.ExchangeRef == "" {
		rep.ExchangeRef = exchangeRef
	}
	return rep, nil
}

func (f *fakeExchange) ListCurrentOrders(ctx context.Context, marketID string) ([]domain.CurrentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, nil
}

func (f *fakeExchange) ClearedOrders(ctx context.Context, settledSince time.Time) ([]domain.ClearedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context) (float64, error) { return 1000, nil }

func refID(n int) string {
	return "EX-" + string(rune('A'+n-1))
}

// fakeOdds serves a fixed snapshot per market.
type fakeOdds struct {
	mu    sync.Mutex
	snaps map[string]domain.OddsSnapshot
	err   error
	calls int
}

func newFakeOdds() *fakeOdds {
	return &fakeOdds{snaps: make(map[string]domain.OddsSnapshot)}
}

func (f *fakeOdds) Snapshot(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		err := f.err
		f.err = nil
		return domain.OddsSnapshot{}, err
	}
	return f.snaps[marketID], nil
}

func (f *fakeOdds) set(marketID string, snap domain.OddsSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap.MarketID = marketID
	f.snaps[marketID] = snap
}

// fakeFeed returns a fixed schedule.
type fakeFeed struct {
	races []domain.Race
	err   error
}

func (f *fakeFeed) Races(ctx context.Context, date time.Time) ([]domain.Race, error) {
	return f.races, f.err
}

// fakeCatalogue returns fixed catalogue entries.
type fakeCatalogue struct {
	entries []domain.CatalogueEntry
	err     error
}

func (f *fakeCatalogue) ListMarkets(ctx context.Context, date time.Time) ([]domain.CatalogueEntry, error) {
	return f.entries, f.err
}

// newTestEngine wires an engine from fakes with test-friendly config.
func newTestEngine(clock *fakeClock, odds *fakeOdds, exch *fakeExchange, store *fakeStorage, cfg Config) *Engine {
	if cfg.Stake == 0 {
		cfg.Stake = 2.0
	}
	if cfg.MinOdds == 0 {
		cfg.MinOdds = 1.5
	}
	if cfg.MaxOdds == 0 {
		cfg.MaxOdds = 100
	}
	if cfg.BaseDispersion == 0 {
		cfg.BaseDispersion = 1.0
	}
	if cfg.BaseCeiling == 0 {
		cfg.BaseCeiling = 30
	}
	return New(&fakeFeed{}, odds, exch, &fakeCatalogue{}, store, cfg, clock)
}
