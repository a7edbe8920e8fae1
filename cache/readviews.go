package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"

	"vparking/metrics"
)

// View 快取的讀取視圖類別
type View string

const (
	ViewLots       View = "lots"
	ViewLotSpots   View = "lot_spots"
	ViewDashboard  View = "dashboard"
	ViewCharts     View = "charts"
	ViewUserCharts View = "user_charts"
)

// Key 由 (視圖, 參數) 組成
type Key struct {
	View   View
	Params string
}

func (k Key) String() string {
	return string(k.View) + "|" + k.Params
}

func LotListKey() Key { return Key{View: ViewLots, Params: "all"} }
func LotKey(lotID int) Key { return Key{View: ViewLots, Params: strconv.Itoa(lotID)} }
func LotSpotsKey(lotID int) Key { return Key{View: ViewLotSpots, Params: strconv.Itoa(lotID)} }
func DashboardKey() Key { return Key{View: ViewDashboard} }
func ChartsKey() Key { return Key{View: ViewCharts} }
func UserChartsKey(userID int) Key { return Key{View: ViewUserCharts, Params: strconv.Itoa(userID)} }

type TTLs struct {
	Lots   time.Duration
	Spots  time.Duration
	Charts time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Lots:   300 * time.Second,
		Spots:  120 * time.Second,
		Charts: 60 * time.Second,
	}
}

type family struct {
	store *bigcache.BigCache
	// mu 讓失效與寫入互斥，gen 讓失效前開始的讀取不會寫回舊資料
	mu  sync.Mutex
	gen atomic.Uint64
}

// ReadViews 讀取視圖快取；nil 代表停用快取
type ReadViews struct {
	families map[View]*family
}

// New 為每個視圖建立獨立的 bigcache，LifeWindow 即該視圖的 TTL
func New(ctx context.Context, ttls TTLs) (*ReadViews, error) {
	windows := map[View]time.Duration{
		ViewLots:       ttls.Lots,
		ViewLotSpots:   ttls.Spots,
		ViewDashboard:  ttls.Charts,
		ViewCharts:     ttls.Charts,
		ViewUserCharts: ttls.Charts,
	}

	rv := &ReadViews{families: make(map[View]*family, len(windows))}
	for view, ttl := range windows {
		if ttl <= 0 {
			rv.Close()
			return nil, fmt.Errorf("cache ttl for %s must be positive, got %s", view, ttl)
		}
		cfg := bigcache.DefaultConfig(ttl)
		cfg.Shards = 16
		cfg.MaxEntriesInWindow = 1024
		cfg.MaxEntrySize = 4096
		cfg.HardMaxCacheSize = 64
		cfg.CleanWindow = ttl
		cfg.Verbose = false

		store, err := bigcache.New(ctx, cfg)
		if err != nil {
			rv.Close()
			return nil, fmt.Errorf("failed to create %s cache: %w", view, err)
		}
		rv.families[view] = &family{store: store}
	}
	return rv, nil
}

func (v *ReadViews) Close() {
	if v == nil {
		return
	}
	for view, f := range v.families {
		if err := f.store.Close(); err != nil {
			log.Printf("Failed to close %s cache: %v", view, err)
		}
	}
}

// Fetch 先查快取，未命中或過期時呼叫 load 並寫回
func Fetch[T any](v *ReadViews, key Key, load func() (T, error)) (T, error) {
	if v == nil {
		return load()
	}
	f, ok := v.families[key.View]
	if !ok {
		return load()
	}

	raw, resp, err := f.store.GetWithInfo(key.String())
	if err == nil && resp.EntryStatus != bigcache.Expired {
		var cached T
		decodeErr := json.Unmarshal(raw, &cached)
		if decodeErr == nil {
			metrics.CacheRequests.WithLabelValues(string(key.View), "hit").Inc()
			return cached, nil
		}
		log.Printf("Discarding undecodable cache entry %s: %v", key, decodeErr)
	} else if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		log.Printf("Failed to read cache entry %s: %v", key, err)
	}
	metrics.CacheRequests.WithLabelValues(string(key.View), "miss").Inc()

	gen := f.gen.Load()
	value, err := load()
	if err != nil {
		return value, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		log.Printf("Failed to encode cache entry %s: %v", key, err)
		return value, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen.Load() != gen {
		return value, nil
	}
	if err := f.store.Set(key.String(), encoded); err != nil {
		log.Printf("Failed to store cache entry %s: %v", key, err)
	}
	return value, nil
}

// InvalidateLot 停車場、車位或預約異動後，清除所有可能受影響的視圖
func (v *ReadViews) InvalidateLot(lotID int) {
	if v == nil {
		return
	}
	v.reset(ViewLots)
	v.reset(ViewDashboard)
	v.reset(ViewCharts)
	v.reset(ViewUserCharts)
	v.delete(LotSpotsKey(lotID))
	metrics.CacheInvalidations.Inc()
}

func (v *ReadViews) reset(view View) {
	f, ok := v.families[view]
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen.Add(1)
	if err := f.store.Reset(); err != nil {
		log.Printf("Failed to reset %s cache: %v", view, err)
	}
}

func (v *ReadViews) delete(key Key) {
	f, ok := v.families[key.View]
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen.Add(1)
	if err := f.store.Delete(key.String()); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		log.Printf("Failed to delete cache entry %s: %v", key, err)
	}
}
