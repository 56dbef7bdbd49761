package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/labelops/backend/internal/infrastructure/config"
	"github.com/labelops/backend/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

const (
	minioUser     = "ledger"
	minioPassword = "ledger-secret"
)

// startMinio runs a throwaway S3-compatible server and returns its endpoint
func startMinio(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start MinIO container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return fmt.Sprintf("http://%s:%d", host, port.Int())
}

func TestS3ArchiveStore_RoundTrip(t *testing.T) {
	endpoint := startMinio(t)
	ctx := context.Background()

	store, err := storage.NewS3ArchiveStore(&config.ArchiveConfig{
		Enabled:      true,
		Endpoint:     endpoint,
		Region:       "us-east-1",
		Bucket:       "ledger-archive",
		AccessKey:    minioUser,
		SecretKey:    minioPassword,
		UsePathStyle: true,
		Prefix:       "ledger",
	}, storage.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	require.NoError(t, store.EnsureBucket(ctx))
	// creating an existing bucket is a no-op
	require.NoError(t, store.EnsureBucket(ctx))

	key := "2024-09-02/production-run-test-movements.xlsx"
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, key, []byte("PK workbook"), "application/octet-stream"))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	url, _, err := store.DownloadURL(ctx, key, time.Minute)
	require.NoError(t, err)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "PK workbook", string(body))

	require.NoError(t, store.Delete(ctx, key))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}
