package disk

import (
	"path/filepath"
	"testing"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	for _, name := range Names() {
		parsed, err := ParseName(" " + string(name) + " ")
		require.NoError(t, err)
		require.Equal(t, name, parsed)
	}

	parsed, err := ParseName("NEWS")
	require.NoError(t, err)
	require.Equal(t, News, parsed)

	_, err = ParseName("avatars")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownName))
}

func TestExtension(t *testing.T) {
	require.Equal(t, "png", Extension("a.PNG"))
	require.Equal(t, "gz", Extension("a.tar.gz"))
	require.Equal(t, "none", Extension("readme"))
}

func TestManager(t *testing.T) {
	news, err := NewLocalDisk(News, filepath.Join(t.TempDir(), "news"), "/storage/news")
	require.NoError(t, err)
	orgs, err := NewLocalDisk(Organizations, filepath.Join(t.TempDir(), "orgs"), "/storage/organizations")
	require.NoError(t, err)

	m, err := NewManager(news, orgs)
	require.NoError(t, err)
	require.Equal(t, []Name{Organizations, News}, m.Names())

	d, err := m.Disk(News)
	require.NoError(t, err)
	require.Equal(t, News, d.Name())

	_, err = m.Disk(Activities)
	require.True(t, errors.Is(err, ErrUnknownName))

	_, err = NewManager(news, news)
	require.Error(t, err)
}
