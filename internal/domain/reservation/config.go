package reservation

import (
	"context"
	"strconv"
	"time"

	"fiunum/internal/domain/settings"
)

// Settings keys for the reservation limits. The generic settings store is
// the persistence backend only; this config struct owns their meaning.
const (
	KeyMaxConcurrent  = "max_concurrent_reservations"
	KeyMaxPerUser     = "max_reservations_per_user"
	KeyTimeoutMinutes = "reservation_timeout_minutes"
	KeyMonthGraceDays = "month_grace_period"
)

// Defaults applied when a setting is absent or unparseable.
const (
	DefaultMaxConcurrent  = 999
	DefaultMaxPerUser     = 1
	DefaultTimeout        = 5 * time.Minute
	DefaultMonthGraceDays = 3
)

// Limits is the effective reservation configuration at one point in time.
type Limits struct {
	MaxConcurrent  int
	MaxPerUser     int
	Timeout        time.Duration
	MonthGraceDays int
}

// LimitsProvider loads Limits from the settings store on every call, so cap
// changes made by an admin take effect immediately.
type LimitsProvider struct {
	store settings.Store
}

// NewLimitsProvider creates a LimitsProvider over a settings store.
func NewLimitsProvider(store settings.Store) *LimitsProvider {
	return &LimitsProvider{store: store}
}

// Load reads the current limits, falling back to defaults per key.
func (p *LimitsProvider) Load(ctx context.Context) (Limits, error) {
	l := Limits{
		MaxConcurrent:  DefaultMaxConcurrent,
		MaxPerUser:     DefaultMaxPerUser,
		Timeout:        DefaultTimeout,
		MonthGraceDays: DefaultMonthGraceDays,
	}

	maxConcurrent, err := p.intSetting(ctx, KeyMaxConcurrent, DefaultMaxConcurrent)
	if err != nil {
		return l, err
	}
	l.MaxConcurrent = maxConcurrent

	maxPerUser, err := p.intSetting(ctx, KeyMaxPerUser, DefaultMaxPerUser)
	if err != nil {
		return l, err
	}
	l.MaxPerUser = maxPerUser

	timeoutMinutes, err := p.intSetting(ctx, KeyTimeoutMinutes, int(DefaultTimeout/time.Minute))
	if err != nil {
		return l, err
	}
	l.Timeout = time.Duration(timeoutMinutes) * time.Minute

	graceDays, err := p.intSetting(ctx, KeyMonthGraceDays, DefaultMonthGraceDays)
	if err != nil {
		return l, err
	}
	l.MonthGraceDays = graceDays

	return l, nil
}

// SetCaps persists the two concurrency caps.
func (p *LimitsProvider) SetCaps(ctx context.Context, maxConcurrent, maxPerUser int) error {
	if err := p.store.Set(ctx, KeyMaxConcurrent, strconv.Itoa(maxConcurrent)); err != nil {
		return err
	}
	return p.store.Set(ctx, KeyMaxPerUser, strconv.Itoa(maxPerUser))
}

// SetTimeout persists the reservation timeout in minutes. Takes effect for
// new reservations only.
func (p *LimitsProvider) SetTimeout(ctx context.Context, minutes int) error {
	return p.store.Set(ctx, KeyTimeoutMinutes, strconv.Itoa(minutes))
}

func (p *LimitsProvider) intSetting(ctx context.Context, key string, fallback int) (int, error) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}
