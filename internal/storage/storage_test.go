package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/common"
)

func TestArtifactPath(t *testing.T) {
	id := uuid.MustParse("6f1c1c2e-0f5a-4b8e-9d55-3c1f0e9f7a10")
	assert.Equal(t,
		"artifacts/6f1c1c2e-0f5a-4b8e-9d55-3c1f0e9f7a10/page_image/page_003.png",
		ArtifactPath(id, constants.ArtifactPageImage, "page_003.png"))
	assert.Equal(t,
		"artifacts/6f1c1c2e-0f5a-4b8e-9d55-3c1f0e9f7a10/ocr_text/page_text.json",
		ArtifactPath(id, constants.ArtifactOCRText, "/tmp/x/page_text.json"))
}

func TestUploadPath(t *testing.T) {
	p := UploadPath("acme", "/home/me/Floor Plan.pdf")
	assert.True(t, strings.HasPrefix(p, "plans/acme/"))
	assert.True(t, strings.HasSuffix(p, "-Floor Plan.pdf"))

	assert.True(t, strings.HasPrefix(UploadPath("", "a.png"), "plans/anonymous/"))
}

func TestFSStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.HealthCheck(ctx))

	require.NoError(t, s.Upload(ctx, "artifacts/j/page_image/page_000.png", []byte("png"), "image/png"))
	got, err := s.Download(ctx, "artifacts/j/page_image/page_000.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got)

	// overwrite
	require.NoError(t, s.Upload(ctx, "artifacts/j/page_image/page_000.png", []byte("png2"), "image/png"))
	got, err = s.Download(ctx, "artifacts/j/page_image/page_000.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png2"), got)
}

func TestFSStore_Errors(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Download(ctx, "missing.pdf")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	_, err = s.Download(ctx, "../escape")
	assert.True(t, errors.Is(err, common.ErrInvalidInput))

	err = s.Upload(ctx, "..", []byte("x"), "")
	assert.True(t, errors.Is(err, common.ErrInvalidInput))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Upload(cctx, "a", []byte("x"), ""), context.Canceled)

	_, err = NewFSStore("")
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), common.StorageConfig{Backend: "s4"}, nil)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))

	st, err := Open(context.Background(), common.StorageConfig{Backend: "fs", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, st)
}
