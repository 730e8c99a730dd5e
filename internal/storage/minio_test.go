package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/plan-intel/internal/common"
)

func TestMinioStore_WrapClassifiesErrors(t *testing.T) {
	s := &MinioStore{bucket: "plans", logger: slog.Default()}

	err := s.wrap("download", "plans/a.pdf", miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: 404})
	assert.True(t, errors.Is(err, common.ErrNotFound))

	err = s.wrap("upload", "plans/a.pdf", miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: 403})
	assert.True(t, errors.Is(err, common.ErrStorage))
	assert.Contains(t, err.Error(), "upload plans/a.pdf")

	err = s.wrap("upload", "plans/a.pdf", fmt.Errorf("put: %w", context.DeadlineExceeded))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, common.ErrStorage))
}
