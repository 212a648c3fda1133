// Package tokens provides token counting using tiktoken-go. Counts feed the
// session budget and are memoized by content fingerprint since encoding is
// deterministic and relatively expensive.
package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/seva/axon/internal/resilience"
)

// Counter counts tokens in text using the cl100k_base encoding.
type Counter struct {
	enc   *tiktoken.Tiktoken
	once  sync.Once
	err   error
	cache *resilience.Cache[int]
}

// NewCounter creates a counter with an internal memoization cache.
func NewCounter() *Counter {
	return &Counter{cache: resilience.NewCache[int]()}
}

// Count returns the number of tokens in the given text. Falls back to a
// rough 4-chars-per-token estimate when the encoding is unavailable.
func (c *Counter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}

	key := fingerprint(text)
	if n, ok := c.cache.Get(key); ok {
		return n
	}

	c.init()
	var n int
	if c.err != nil || c.enc == nil {
		n = len(text) / 4
	} else {
		n = len(c.enc.Encode(text, nil, nil))
	}

	c.cache.Set(key, n, time.Hour)
	return n
}

// Estimate returns a quick token estimate without full encoding.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

func (c *Counter) init() {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
	})
}

func fingerprint(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:16])
}
