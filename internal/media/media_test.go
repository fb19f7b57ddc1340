package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirpos/backend/internal/config"
)

func TestKeyFromURL(t *testing.T) {
	base := "https://bucket.s3.ap-southeast-1.amazonaws.com"

	key, ok := keyFromURL(base, base+"/uploads/20260101_abc.jpg")
	require.True(t, ok)
	assert.Equal(t, "uploads/20260101_abc.jpg", key)

	key, ok = keyFromURL(base+"/", base+"/uploads/x.png?v=2")
	require.True(t, ok)
	assert.Equal(t, "uploads/x.png", key)

	_, ok = keyFromURL(base, "https://elsewhere.example.com/uploads/x.png")
	assert.False(t, ok)
	_, ok = keyFromURL(base, base+"/")
	assert.False(t, ok)
	_, ok = keyFromURL(base, "")
	assert.False(t, ok)
}

func TestObjectKeyKeepsExtension(t *testing.T) {
	key := objectKey("Struk Listrik.JPG", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(key, "uploads/20260304_"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	s := NewLocalStore("http://cdn.local/files/")
	ctx := context.Background()

	res, err := s.Upload(ctx, "receipt.pdf", "application/pdf", strings.NewReader("%PDF-1.4"), 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.Size)

	key, ok := s.OpaqueIDFromURL(res.URL)
	require.True(t, ok)
	assert.Equal(t, res.Key, key)
	assert.NoError(t, s.Delete(ctx, key))
}

func TestNewFallsBackToLocal(t *testing.T) {
	s, err := New(config.MediaConfig{Driver: "s3"})
	require.NoError(t, err)
	_, isLocal := s.(*LocalStore)
	assert.True(t, isLocal)

	_, err = New(config.MediaConfig{Driver: "s3", AccessKeyID: "AKIA"})
	assert.Error(t, err, "bucket is required")
}
