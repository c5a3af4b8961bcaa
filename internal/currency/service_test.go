package currency

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/blues/eos/internal/config"
)

func warmedService(rate float64) *Service {
	s := NewService(config.CurrencyConfig{CacheTTL: 300, FallbackRate: 1200})
	s.cache.Set(context.Background(), rateCacheKey, rate, time.Minute)
	return s
}

func TestNgnPerMntUsesCache(t *testing.T) {
	s := warmedService(1250)
	if rate := s.NgnPerMnt(context.Background()); rate != 1250 {
		t.Errorf("Expected cached rate 1250, got %f", rate)
	}
}

func TestNgnToMnt(t *testing.T) {
	s := warmedService(1200)
	mnt := s.NgnToMnt(context.Background(), 600000)
	if math.Abs(mnt-500) > 1e-9 {
		t.Errorf("Expected 500 MNT, got %f", mnt)
	}
}

func TestMntToNgn(t *testing.T) {
	s := warmedService(1200)
	ngn := s.MntToNgn(context.Background(), 2.5)
	if math.Abs(ngn-3000) > 1e-9 {
		t.Errorf("Expected 3000 NGN, got %f", ngn)
	}
}

func TestConversionRoundTrip(t *testing.T) {
	s := warmedService(1234.56)
	ctx := context.Background()

	ngn := 750000.0
	back := s.MntToNgn(ctx, s.NgnToMnt(ctx, ngn))
	if math.Abs(back-ngn) > 1e-6 {
		t.Errorf("Round trip mismatch: %f -> %f", ngn, back)
	}
}
