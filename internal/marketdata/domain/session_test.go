package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// et 构造交易所本地时间
func et(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, ExchangeLocation())
}

func TestPhase(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want MarketPhase
	}{
		// 2026-08-31 周一, 2026-09-05 周六, 2026-09-06 周日
		{"周六盘中时间仍休市", et(2026, 9, 5, 10, 0, 0), PhaseClosed},
		{"周日仍休市", et(2026, 9, 6, 12, 0, 0), PhaseClosed},
		{"盘前开始前一秒休市", et(2026, 8, 31, 3, 59, 59), PhaseClosed},
		{"盘前边界 04:00", et(2026, 8, 31, 4, 0, 0), PhasePreMarket},
		{"开盘前一秒仍盘前", et(2026, 8, 31, 9, 29, 59), PhasePreMarket},
		{"开盘边界 09:30", et(2026, 8, 31, 9, 30, 0), PhaseOpen},
		{"收盘前一秒仍开盘", et(2026, 8, 31, 15, 59, 59), PhaseOpen},
		{"收盘边界 16:00 进入盘后", et(2026, 8, 31, 16, 0, 0), PhaseAfterHours},
		{"盘后结束前一秒仍盘后", et(2026, 8, 31, 19, 59, 59), PhaseAfterHours},
		{"盘后结束 20:00 休市", et(2026, 8, 31, 20, 0, 0), PhaseClosed},
		{"午夜休市", et(2026, 8, 31, 0, 0, 0), PhaseClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Phase(tt.now))
		})
	}
}

func TestPhaseConvertsFromOtherZones(t *testing.T) {
	// UTC 14:00 = 纽约 10:00（夏令时），应判定为开盘
	utc := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, PhaseOpen, Phase(utc))
}

func TestStartOfTradingDay(t *testing.T) {
	// UTC 已跨日（9/1 凌晨 2 点），纽约仍是 8/31 晚间
	utc := time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC)
	got := StartOfTradingDay(utc)

	require.Equal(t, ExchangeLocation(), got.Location())
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.August, got.Month())
	assert.Equal(t, 31, got.Day())
	assert.Equal(t, 0, got.Hour())
	assert.Equal(t, 0, got.Minute())
}

func TestStartOfTradingDayIdempotent(t *testing.T) {
	now := et(2026, 8, 31, 15, 30, 0)
	day := StartOfTradingDay(now)
	assert.True(t, day.Equal(StartOfTradingDay(day)))
}
