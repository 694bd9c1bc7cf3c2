// Package settings предоставляет кэш настроек площадки с явным сбросом.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Ключи настроек площадки в хранилище.
const (
	KeyCommissionRatePercent    = "commission_rate_percent"
	KeyAntiSnipingWindowSeconds = "anti_sniping_window_seconds"
)

// Значения по умолчанию, если настройка отсутствует в хранилище.
const (
	DefaultCommissionRatePercent    = 10
	DefaultAntiSnipingWindowSeconds = 300
)

// Source описывает источник значений настроек.
type Source interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// Cache кэширует настройки площадки. Значения читаются из источника один раз
// и переиспользуются до явного вызова Invalidate.
type Cache struct {
	source Source

	mu     sync.RWMutex
	values map[string]string
}

// NewCache создаёт кэш настроек поверх указанного источника.
func NewCache(source Source) *Cache {
	return &Cache{
		source: source,
		values: make(map[string]string),
	}
}

func (c *Cache) get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	value, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	value, err := c.source.GetSetting(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}

	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()

	return value, nil
}

// CommissionRatePercent возвращает ставку комиссии площадки в процентах.
func (c *Cache) CommissionRatePercent(ctx context.Context) (int64, error) {
	value, err := c.get(ctx, KeyCommissionRatePercent)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return DefaultCommissionRatePercent, nil
	}

	rate, err := strconv.ParseInt(value, 10, 64)
	if err != nil || rate < 0 || rate > 100 {
		return DefaultCommissionRatePercent, nil
	}
	return rate, nil
}

// AntiSnipingWindow возвращает окно продления аукциона.
func (c *Cache) AntiSnipingWindow(ctx context.Context) (time.Duration, error) {
	value, err := c.get(ctx, KeyAntiSnipingWindowSeconds)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return DefaultAntiSnipingWindowSeconds * time.Second, nil
	}

	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds <= 0 {
		return DefaultAntiSnipingWindowSeconds * time.Second, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

// Invalidate сбрасывает кэш; следующие чтения пойдут в источник.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.values = make(map[string]string)
	c.mu.Unlock()
}
