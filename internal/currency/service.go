package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/logger"
	"github.com/shopspring/decimal"
)

const (
	coinGeckoUrl    = "https://api.coingecko.com/api/v3/simple/price?ids=mantle&vs_currencies=usd"
	exchangeRateUrl = "https://open.er-api.com/v6/latest/USD"

	rateCacheKey = "rate:ngn_per_mnt"

	// usdNgnFallback 美元兑奈拉的兜底汇率
	usdNgnFallback = 1500.0
)

// Service 汇率服务：预算以奈拉录入，链上托管以MNT计价
type Service struct {
	cfg    config.CurrencyConfig
	cache  RateCache
	client *http.Client
}

// NewService 创建汇率服务。redis_addr非空时使用Redis缓存，否则用内存缓存。
func NewService(cfg config.CurrencyConfig) *Service {
	var cache RateCache
	if cfg.RedisAddr != "" {
		cache = NewRedisCache(cfg.RedisAddr, cfg.RedisDB)
		logger.Info("Currency rate cache backed by redis at %s", cfg.RedisAddr)
	} else {
		cache = NewMemoryCache()
	}
	return &Service{
		cfg:    cfg,
		cache:  cache,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NgnPerMnt 返回1 MNT对应的奈拉数。两级获取：缓存 -> 实时 -> 兜底常数。
func (s *Service) NgnPerMnt(ctx context.Context) float64 {
	if rate, ok := s.cache.Get(ctx, rateCacheKey); ok {
		return rate
	}

	rate, err := s.fetchRate(ctx)
	if err != nil {
		logger.Warn("Live rate fetch failed, using fallback %.2f NGN/MNT: %v", s.cfg.FallbackRate, err)
		return s.cfg.FallbackRate
	}

	s.cache.Set(ctx, rateCacheKey, rate, time.Duration(s.cfg.CacheTTL)*time.Second)
	logger.Info("Refreshed exchange rate: %.2f NGN/MNT (cached %ds)", rate, s.cfg.CacheTTL)
	return rate
}

// NgnToMnt 奈拉换算为MNT
func (s *Service) NgnToMnt(ctx context.Context, ngn float64) float64 {
	rate := s.NgnPerMnt(ctx)
	mnt, _ := decimal.NewFromFloat(ngn).Div(decimal.NewFromFloat(rate)).Float64()
	return mnt
}

// MntToNgn MNT换算为奈拉
func (s *Service) MntToNgn(ctx context.Context, mnt float64) float64 {
	rate := s.NgnPerMnt(ctx)
	ngn, _ := decimal.NewFromFloat(mnt).Mul(decimal.NewFromFloat(rate)).Float64()
	return ngn
}

// fetchRate 组合两段实时汇率：MNT/USD来自CoinGecko，USD/NGN来自exchangerate API。
// 后者失败时用兜底常数，前者失败则整体失败。
func (s *Service) fetchRate(ctx context.Context) (float64, error) {
	mntUsd, err := s.fetchMntUsd(ctx)
	if err != nil {
		return 0, err
	}

	usdNgn, err := s.fetchUsdNgn(ctx)
	if err != nil {
		logger.Warn("USD/NGN fetch failed, using fallback %.2f: %v", usdNgnFallback, err)
		usdNgn = usdNgnFallback
	}

	rate, _ := decimal.NewFromFloat(mntUsd).Mul(decimal.NewFromFloat(usdNgn)).Float64()
	if rate <= 0 {
		return 0, fmt.Errorf("computed non-positive rate %.6f", rate)
	}
	return rate, nil
}

func (s *Service) fetchMntUsd(ctx context.Context) (float64, error) {
	var payload struct {
		Mantle struct {
			Usd float64 `json:"usd"`
		} `json:"mantle"`
	}
	if err := s.getJson(ctx, coinGeckoUrl, &payload); err != nil {
		return 0, fmt.Errorf("coingecko request failed: %w", err)
	}
	if payload.Mantle.Usd <= 0 {
		return 0, fmt.Errorf("coingecko returned no usd price for mantle")
	}
	return payload.Mantle.Usd, nil
}

func (s *Service) fetchUsdNgn(ctx context.Context) (float64, error) {
	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := s.getJson(ctx, exchangeRateUrl, &payload); err != nil {
		return 0, fmt.Errorf("exchange rate request failed: %w", err)
	}
	ngn, ok := payload.Rates["NGN"]
	if !ok || ngn <= 0 {
		return 0, fmt.Errorf("exchange rate response has no NGN rate")
	}
	return ngn, nil
}

func (s *Service) getJson(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
