// Package ratelimit provides sliding-window rate limiting for reservation attempts.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts an attempt against key and reports whether it is allowed.
// Denied attempts are not counted.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Config holds rate limit configuration.
type Config struct {
	Limit  int           // Max attempts per window (default: 10)
	Window time.Duration // Sliding window length (default: 1m)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Limit:  10,
		Window: time.Minute,
	}
}

func (c *Config) withDefaults() *Config {
	out := DefaultConfig()
	if c == nil {
		return out
	}
	if c.Limit > 0 {
		out.Limit = c.Limit
	}
	if c.Window > 0 {
		out.Window = c.Window
	}
	out.Clock = c.Clock
	return out
}

// MemoryLimiter keeps a per-key log of attempt times in process memory. It is
// only correct for single-instance deployments; use RedisLimiter when several
// instances share traffic.
type MemoryLimiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	// Keyed by hash of the caller key
	attempts map[string][]time.Time

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// NewMemory creates an in-process limiter with the given config.
func NewMemory(cfg *Config) *MemoryLimiter {
	cfg = cfg.withDefaults()
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryLimiter{
		config:        cfg,
		clock:         clock,
		attempts:      make(map[string][]time.Time),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *MemoryLimiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.startCleanup()
	now := l.clock.Now()
	hashed := hashKey("attempt:", key)

	l.mu.Lock()
	defer l.mu.Unlock()

	window := prune(l.attempts[hashed], now.Add(-l.config.Window))
	if len(window) >= l.config.Limit {
		l.attempts[hashed] = window
		return Result{
			Allowed:    false,
			RetryAfter: window[0].Add(l.config.Window).Sub(now),
		}, nil
	}

	window = append(window, now)
	l.attempts[hashed] = window
	return Result{Allowed: true, Remaining: l.config.Limit - len(window)}, nil
}

// prune drops attempts at or before cutoff. Attempts are stored oldest first.
func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	return attempts[i:]
}

func hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(normalizeKey(value)))
	return prefix + hex.EncodeToString(hash[:8])
}

// normalizeKey lowercases the key to prevent case-based bypass.
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (l *MemoryLimiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *MemoryLimiter) cleanup() {
	cutoff := l.clock.Now().Add(-l.config.Window)
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, attempts := range l.attempts {
		if remaining := prune(attempts, cutoff); len(remaining) == 0 {
			delete(l.attempts, k)
		} else {
			l.attempts[k] = remaining
		}
	}
}

// SanitizeIdentifier masks an identifier for logging.
func SanitizeIdentifier(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if strings.Contains(identifier, "@") {
		parts := strings.Split(identifier, "@")
		if len(parts[0]) > 2 {
			return parts[0][:2] + "***@" + parts[1]
		}
		return "***@" + parts[1]
	}
	// Phone: show last 4 digits
	if len(identifier) >= 4 {
		return "***" + identifier[len(identifier)-4:]
	}
	return "***"
}

// LogRateLimitExceeded logs a rate limit event with sanitized identifier.
func LogRateLimitExceeded(ctx context.Context, limitType, identifier string, retryAfter time.Duration) {
	log.Ctx(ctx).Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("identifier", SanitizeIdentifier(identifier)).
		Dur("retry_after", retryAfter).
		Msg("Rate limit exceeded")
}
