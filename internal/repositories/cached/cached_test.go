package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/platform/config"
	"github.com/goldenzaika/api/internal/repositories"
)

type stubOrderRepo struct {
	orders    map[string]domain.Order
	listCalls int
	statsHits int
	replay    bool
}

func (s *stubOrderRepo) Create(_ context.Context, order domain.Order, _ repositories.CreateOrderOptions) (domain.Order, bool, error) {
	if s.replay {
		return order, true, nil
	}
	s.orders[order.ID] = order
	return order, false, nil
}

func (s *stubOrderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	return s.orders[id], nil
}

func (s *stubOrderRepo) ListByUser(_ context.Context, userID string, _ int) ([]domain.Order, error) {
	s.listCalls++
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubOrderRepo) ListAll(_ context.Context, _ int) ([]domain.Order, error) {
	s.listCalls++
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out, nil
}

func (s *stubOrderRepo) Mutate(_ context.Context, id string, fn func(*domain.Order) error) (domain.Order, error) {
	order := s.orders[id]
	if err := fn(&order); err != nil {
		return domain.Order{}, err
	}
	s.orders[id] = order
	return order, nil
}

func (s *stubOrderRepo) Stats(context.Context) (domain.OrderStats, error) {
	s.statsHits++
	return domain.OrderStats{TotalOrders: len(s.orders), TotalRevenue: decimal.RequireFromString("10.5")}, nil
}

func newLayer() *cache.Layer {
	return cache.NewLayer(cache.NewMemoryStore(nil), nil)
}

func TestOrderRepositoryReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	stub := &stubOrderRepo{orders: map[string]domain.Order{
		"o1": {ID: "o1", UserID: "u1", Status: domain.OrderStatusPlaced},
	}}
	repo := NewOrderRepository(stub, newLayer(), config.CacheConfig{OrdersTTL: 5 * time.Minute, StatsTTL: 10 * time.Minute})

	if _, err := repo.ListByUser(ctx, "u1", 20); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := repo.ListByUser(ctx, "u1", 20); err != nil {
		t.Fatalf("list: %v", err)
	}
	if stub.listCalls != 1 {
		t.Fatalf("expected second read served from cache, got %d loads", stub.listCalls)
	}

	if _, err := repo.Mutate(ctx, "o1", func(o *domain.Order) error {
		o.Status = domain.OrderStatusCancelled
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	orders, err := repo.ListByUser(ctx, "u1", 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != domain.OrderStatusCancelled {
		t.Fatalf("expected fresh status after write, got %#v", orders)
	}
	if stub.listCalls != 2 {
		t.Fatalf("expected reload after invalidation, got %d loads", stub.listCalls)
	}
}

func TestOrderRepositoryCreateInvalidatesAdminList(t *testing.T) {
	ctx := context.Background()
	stub := &stubOrderRepo{orders: map[string]domain.Order{}}
	repo := NewOrderRepository(stub, newLayer(), config.CacheConfig{OrdersTTL: time.Minute})

	if _, err := repo.ListAll(ctx, 50); err != nil {
		t.Fatalf("list all: %v", err)
	}
	if _, _, err := repo.Create(ctx, domain.Order{ID: "o2", UserID: "u2"}, repositories.CreateOrderOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	all, err := repo.ListAll(ctx, 50)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected new order in admin list, got %d", len(all))
	}
}

func TestOrderRepositoryStatsCachedWithDecimal(t *testing.T) {
	ctx := context.Background()
	stub := &stubOrderRepo{orders: map[string]domain.Order{}}
	repo := NewOrderRepository(stub, newLayer(), config.CacheConfig{StatsTTL: time.Minute})

	for i := 0; i < 2; i++ {
		stats, err := repo.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if !stats.TotalRevenue.Equal(decimal.RequireFromString("10.5")) {
			t.Fatalf("unexpected revenue %s", stats.TotalRevenue)
		}
	}
	if stub.statsHits != 1 {
		t.Fatalf("expected stats cached, got %d loads", stub.statsHits)
	}
}

type stubUserRepo struct {
	roles     map[string]string
	roleCalls int
	setErr    error
}

func (s *stubUserRepo) Get(_ context.Context, id string) (domain.UserProfile, error) {
	return domain.UserProfile{ID: id, Role: s.roles[id]}, nil
}

func (s *stubUserRepo) Role(_ context.Context, id string) (string, error) {
	s.roleCalls++
	if role, ok := s.roles[id]; ok {
		return role, nil
	}
	return domain.RoleUser, nil
}

func (s *stubUserRepo) SetRole(_ context.Context, id, role string, _ time.Time) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.roles[id] = role
	return nil
}

func TestUserRepositoryRoleInvalidatedOnChange(t *testing.T) {
	ctx := context.Background()
	stub := &stubUserRepo{roles: map[string]string{"u1": domain.RoleAdmin}}
	repo := NewUserRepository(stub, newLayer(), 15*time.Minute)

	if role, _ := repo.Role(ctx, "u1"); role != domain.RoleAdmin {
		t.Fatalf("expected admin, got %q", role)
	}
	if err := repo.SetRole(ctx, "u1", domain.RoleUser, time.Now()); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if role, _ := repo.Role(ctx, "u1"); role != domain.RoleUser {
		t.Fatalf("expected demotion visible immediately, got %q", role)
	}
	if stub.roleCalls != 2 {
		t.Fatalf("expected two loads, got %d", stub.roleCalls)
	}
}

func TestUserRepositoryFailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	stub := &stubUserRepo{roles: map[string]string{"u1": domain.RoleAdmin}, setErr: errors.New("boom")}
	repo := NewUserRepository(stub, newLayer(), time.Minute)

	_, _ = repo.Role(ctx, "u1")
	if err := repo.SetRole(ctx, "u1", domain.RoleUser, time.Now()); err == nil {
		t.Fatalf("expected write error")
	}
	_, _ = repo.Role(ctx, "u1")
	if stub.roleCalls != 1 {
		t.Fatalf("expected cache kept after failed write, got %d loads", stub.roleCalls)
	}
}

type stubFavoriteRepo struct {
	favorites []domain.Favorite
	lists     int
}

func (s *stubFavoriteRepo) List(context.Context, string) ([]domain.Favorite, error) {
	s.lists++
	return append([]domain.Favorite(nil), s.favorites...), nil
}

func (s *stubFavoriteRepo) Add(_ context.Context, _ string, fav domain.Favorite) error {
	s.favorites = append(s.favorites, fav)
	return nil
}

func (s *stubFavoriteRepo) Remove(context.Context, string, string) error { return nil }

type stubProductRepo map[string]domain.Product

func (s stubProductRepo) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestFavoriteRepositoryEnrichesAndDropsMissingProducts(t *testing.T) {
	ctx := context.Background()
	favs := &stubFavoriteRepo{favorites: []domain.Favorite{{ProductID: "p1"}, {ProductID: "gone"}}}
	products := stubProductRepo{"p1": {ID: "p1", Name: "Paneer Tikka", Price: decimal.RequireFromString("220")}}
	repo := NewFavoriteRepository(favs, products, newLayer(), time.Hour)

	got, err := repo.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Product == nil || got[0].Product.Name != "Paneer Tikka" {
		t.Fatalf("unexpected favorites %#v", got)
	}

	if err := repo.Add(ctx, "u1", domain.Favorite{ProductID: "p1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := repo.List(ctx, "u1"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if favs.lists != 2 {
		t.Fatalf("expected reload after add, got %d", favs.lists)
	}
}

type stubZoneRepo struct {
	zones []domain.Zone
	lists int
}

func (s *stubZoneRepo) List(context.Context) ([]domain.Zone, error) {
	s.lists++
	return append([]domain.Zone(nil), s.zones...), nil
}
func (s *stubZoneRepo) Get(context.Context, string) (domain.Zone, error) { return domain.Zone{}, nil }
func (s *stubZoneRepo) Insert(_ context.Context, z domain.Zone) error {
	s.zones = append(s.zones, z)
	return nil
}
func (s *stubZoneRepo) Update(context.Context, domain.Zone) error { return nil }
func (s *stubZoneRepo) Delete(context.Context, string) error      { return nil }

func TestZoneRepositoryFailsOpenWhenCacheDown(t *testing.T) {
	ctx := context.Background()
	stub := &stubZoneRepo{zones: []domain.Zone{{ID: "z1", Name: "Central", DeliveryFee: decimal.RequireFromString("30")}}}
	repo := NewZoneRepository(stub, cache.NewLayer(downStore{}, nil), time.Hour)

	for i := 0; i < 2; i++ {
		zones, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("list with cache down: %v", err)
		}
		if len(zones) != 1 || !zones[0].DeliveryFee.Equal(decimal.RequireFromString("30")) {
			t.Fatalf("unexpected zones %#v", zones)
		}
	}
	if stub.lists != 2 {
		t.Fatalf("expected every read to reach the store, got %d", stub.lists)
	}
	if err := repo.Insert(ctx, domain.Zone{ID: "z2"}); err != nil {
		t.Fatalf("insert with cache down: %v", err)
	}
}

type downStore struct{}

func (downStore) Get(context.Context, string) ([]byte, error)              { return nil, errors.New("redis down") }
func (downStore) Set(context.Context, string, []byte, time.Duration) error { return errors.New("redis down") }
func (downStore) Delete(context.Context, ...string) error                  { return errors.New("redis down") }
func (downStore) Ping(context.Context) error                               { return errors.New("redis down") }
