package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds the padding applied to failed logins
type TimingConfig struct {
	BaseDelayMs   int
	RandomDelayMs int
}

// TimingDelay pads failed authentication so that an unknown email and a wrong
// password take about the same time to answer
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

// NewTimingDelay creates a new TimingDelay
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config, sleep: time.Sleep}
}

// cryptoRandIntn returns a uniformly random number in [0, max)
func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// target returns base plus a random jitter
func (td *TimingDelay) target() time.Duration {
	jitter := cryptoRandIntn(td.config.RandomDelayMs)
	return time.Duration(td.config.BaseDelayMs+jitter) * time.Millisecond
}

// WaitFrom sleeps until at least the target delay has elapsed since start.
// Successful operations are never delayed.
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if td == nil || success {
		return
	}
	if remaining := td.target() - time.Since(start); remaining > 0 {
		td.sleep(remaining)
	}
}
