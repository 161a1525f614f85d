package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileUserAgent(t *testing.T) {
	t.Parallel()

	assert.Contains(t, ProfileUserAgent("chrome", "desktop"), "Chrome")
	assert.Contains(t, ProfileUserAgent("chrome", "mobile"), "Mobile")
	assert.Contains(t, ProfileUserAgent("firefox", "desktop"), "Firefox")
	assert.Contains(t, ProfileUserAgent("Firefox", "Mobile"), "Firefox")
	assert.NotContains(t, ProfileUserAgent("firefox", "desktop"), "Chrome")

	// Unknown combinations fall back to desktop Chrome.
	assert.Equal(t, ProfileUserAgent("chrome", "desktop"), ProfileUserAgent("", ""))
}

func TestNewFactoryDefaults(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{Headless: true}, nil)
	assert.NotNil(t, f)
	assert.True(t, f.cfg.Headless)
	assert.NotNil(t, f.logger)
}
