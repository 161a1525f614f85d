package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSiteCrawler struct{ name string }

func (stubSiteCrawler) Crawl(context.Context, Job) error { return nil }

func TestRegistry_LookupMatchesSubstring(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("datoid.cz", func(Browser) SiteCrawler { return stubSiteCrawler{name: "datoid"} })

	factory, ok := reg.Lookup("https://datoid.cz/s/whatever/1")
	require.True(t, ok)
	sc := factory(nil)
	assert.Equal(t, stubSiteCrawler{name: "datoid"}, sc)

	_, ok = reg.Lookup("https://unknown-site.example")
	assert.False(t, ok)
}

func TestRegistry_LookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("Datoid.CZ", func(Browser) SiteCrawler { return stubSiteCrawler{} })

	_, ok := reg.Lookup("HTTPS://DATOID.CZ")
	assert.True(t, ok)
}

func TestRegistry_LaterRegistrationWins(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("site", func(Browser) SiteCrawler { return stubSiteCrawler{name: "old"} })
	reg.Register("site", func(Browser) SiteCrawler { return stubSiteCrawler{name: "new"} })

	factory, ok := reg.Lookup("https://site.example")
	require.True(t, ok)
	assert.Equal(t, stubSiteCrawler{name: "new"}, factory(nil))
	assert.Len(t, reg.Patterns(), 1)
}
