package domain

import (
	"sync"
	"time"
)

// MarketPhase 交易时段
type MarketPhase string

const (
	// PhaseOpen 常规交易时段
	PhaseOpen MarketPhase = "OPEN"
	// PhasePreMarket 盘前时段
	PhasePreMarket MarketPhase = "PRE_MARKET"
	// PhaseAfterHours 盘后时段
	PhaseAfterHours MarketPhase = "AFTER_HOURS"
	// PhaseClosed 休市
	PhaseClosed MarketPhase = "CLOSED"
)

// 交易所本地时段边界（自午夜起的分钟数）
const (
	preMarketOpenMinute = 4 * 60    // 04:00
	regularOpenMinute   = 9*60 + 30 // 09:30
	regularCloseMinute  = 16 * 60   // 16:00
	afterHoursEndMinute = 20 * 60   // 20:00
)

// exchangeLocation 交易所时区（美东），夏令时由日历规则解析，与宿主机时区无关。
// tzdata 缺失属于部署错误，直接 panic。
var exchangeLocation = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("failed to load exchange timezone: " + err.Error())
	}
	return loc
})

// ExchangeLocation 返回交易所时区
func ExchangeLocation() *time.Location {
	return exchangeLocation()
}

// Phase 返回给定时刻的交易时段。纯函数，按交易所本地时间判定。
func Phase(now time.Time) MarketPhase {
	local := now.In(exchangeLocation())

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return PhaseClosed
	}

	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes < preMarketOpenMinute:
		return PhaseClosed
	case minutes < regularOpenMinute:
		return PhasePreMarket
	case minutes < regularCloseMinute:
		return PhaseOpen
	case minutes < afterHoursEndMinute:
		return PhaseAfterHours
	default:
		return PhaseClosed
	}
}

// StartOfTradingDay 返回给定时刻所在交易所本地日期的午夜，表示为绝对时刻。
// UTC 时刻落在交易所本地午夜之前时，日历日期随之前移。
func StartOfTradingDay(now time.Time) time.Time {
	local := now.In(exchangeLocation())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, exchangeLocation())
}
