package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenrsr/capx-stockfolio/internal/models"
	"github.com/zenrsr/capx-stockfolio/internal/store"
)

// fakeBackend serves the /stocks resource from memory.
type fakeBackend struct {
	mu     sync.Mutex
	nextID int64
	stocks map[int64]models.Holding
}

func newFakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	fb := &fakeBackend{stocks: map[int64]models.Holding{}}
	r := mux.NewRouter()
	r.HandleFunc("/stocks", fb.list).Methods(http.MethodGet)
	r.HandleFunc("/stocks", fb.create).Methods(http.MethodPost)
	r.HandleFunc("/stocks/{id}", fb.get).Methods(http.MethodGet)
	r.HandleFunc("/stocks/{id}", fb.update).Methods(http.MethodPut)
	r.HandleFunc("/stocks/{id}", fb.remove).Methods(http.MethodDelete)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func (fb *fakeBackend) list(w http.ResponseWriter, _ *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]models.Holding, 0, len(fb.stocks))
	for id := int64(1); id <= fb.nextID; id++ {
		if h, ok := fb.stocks[id]; ok {
			out = append(out, h)
		}
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (fb *fakeBackend) create(w http.ResponseWriter, r *http.Request) {
	var h models.Holding
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fb.mu.Lock()
	fb.nextID++
	h.ID = fb.nextID
	fb.stocks[h.ID] = h
	fb.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(h)
}

func (fb *fakeBackend) lookup(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if _, ok := fb.stocks[id]; !ok {
		http.Error(w, "stock not found", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func (fb *fakeBackend) get(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if id, ok := fb.lookup(w, r); ok {
		_ = json.NewEncoder(w).Encode(fb.stocks[id])
	}
}

func (fb *fakeBackend) update(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id, ok := fb.lookup(w, r)
	if !ok {
		return
	}
	var h models.Holding
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.ID = id
	fb.stocks[id] = h
	_ = json.NewEncoder(w).Encode(h)
}

func (fb *fakeBackend) remove(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if id, ok := fb.lookup(w, r); ok {
		delete(fb.stocks, id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestClientCRUD(t *testing.T) {
	srv := newFakeBackend(t)
	c := NewClient(srv.URL+"/", srv.Client(), nil)
	ctx := context.Background()

	created, err := c.CreateHolding(ctx, models.Holding{Name: "Bitcoin", Ticker: "btc", Quantity: 0.5, BuyPrice: 30000, CurrentPrice: 40000})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "BTC", created.Ticker)
	assert.True(t, created.IsCrypto)
	assert.Equal(t, 5000.0, created.ProfitLoss)

	_, err = c.CreateHolding(ctx, models.Holding{Ticker: "AAPL", Quantity: 2, BuyPrice: 150})
	require.NoError(t, err)

	list, err := c.ListHoldings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.AssetEquity, list[1].AssetClass)

	created.Quantity = 1
	updated, err := c.UpdateHolding(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, 1.0, updated.Quantity)

	got, err := c.GetHolding(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin", got.Name)

	require.NoError(t, c.DeleteHolding(ctx, created.ID))
	_, err = c.GetHolding(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, c.DeleteHolding(ctx, created.ID), store.ErrNotFound)
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "database offline", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client(), nil).ListHoldings(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "database offline")
	assert.NotErrorIs(t, err, store.ErrNotFound)
}
