package dirlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetPutMiss(t *testing.T) {
	c := NewCache()
	_, ok := c.Get("c:")
	assert.False(t, ok)

	entries := []Entry{{Name: "readme.txt", Size: 4}}
	c.Put("c:", entries)
	got, ok := c.Get("c:")
	require.True(t, ok)
	assert.Equal(t, entries, got)
}

func TestCachePutNilStoresEmptyPresentListing(t *testing.T) {
	c := NewCache()
	c.Put("c:\\empty", nil)
	got, ok := c.Get("c:\\empty")
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestCacheEvict(t *testing.T) {
	c := NewCache()
	c.Put("c:\\foo", []Entry{{Name: "a"}})
	c.Evict("c:\\foo")
	_, ok := c.Get("c:\\foo")
	assert.False(t, ok)
}
