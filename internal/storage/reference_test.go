package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Laisky/campus-portal/internal/storage/disk"
)

func TestParseReference(t *testing.T) {
	cases := []struct {
		raw  string
		kind ReferenceKind
	}{
		{raw: "1700000000_abcdef0123456789.png", kind: RefFilename},
		{raw: "/storage/news/x.png", kind: RefPublicPath},
		{raw: "https://cdn.example.edu/x.png", kind: RefExternalURL},
		{raw: "HTTP://cdn.example.edu/x.png", kind: RefExternalURL},
		{raw: "//cdn.example.edu/x.png", kind: RefExternalURL},
	}
	for _, tc := range cases {
		ref, ok := ParseReference(tc.raw)
		require.True(t, ok, tc.raw)
		require.Equal(t, tc.kind, ref.Kind, tc.raw)
	}

	_, ok := ParseReference("  ")
	require.False(t, ok)
}

func TestResolveReference(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.putAged(t, disk.News, "present.png", "x", 0)

	url, ok := env.svc.ResolveReference(ctx, disk.News, Reference{Kind: RefFilename, Value: "present.png"})
	require.True(t, ok)
	require.Equal(t, "/storage/news/present.png", url)

	_, ok = env.svc.ResolveReference(ctx, disk.News, Reference{Kind: RefFilename, Value: "absent.png"})
	require.False(t, ok)

	url, ok = env.svc.ResolveReference(ctx, disk.News, Reference{Kind: RefExternalURL, Value: "https://x.test/a.png"})
	require.True(t, ok)
	require.Equal(t, "https://x.test/a.png", url)

	url, ok = env.svc.ResolveReference(ctx, disk.News, Reference{Kind: RefPublicPath, Value: "/storage/legacy/a.png"})
	require.True(t, ok)
	require.Equal(t, "/storage/legacy/a.png", url)
}

func TestLocalFilename(t *testing.T) {
	env := newTestEnv(t, nil)

	for raw, want := range map[string]string{
		"x.png":                     "x.png",
		"/storage/news/x.png":       "x.png",
		"/storage/activities/x.png": "",
		"/storage/news/sub/x.png":   "",
		"https://x.test/x.png":      "",
	} {
		ref, ok := ParseReference(raw)
		require.True(t, ok)
		got, ok := env.svc.LocalFilename(disk.News, ref)
		require.Equal(t, want != "", ok, raw)
		require.Equal(t, want, got, raw)
	}
}
