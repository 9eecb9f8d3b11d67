//go:build integration

package s3

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/storage"
)

func TestStoreAgainstMinIO(t *testing.T) {
	endpoint := strings.TrimSpace(os.Getenv("ASKDB_TEST_S3_ENDPOINT"))
	if endpoint == "" {
		t.Skip("ASKDB_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, Config{
		Endpoint:        endpoint,
		Region:          envOr("ASKDB_TEST_S3_REGION", "us-east-1"),
		Bucket:          envOr("ASKDB_TEST_S3_BUCKET", "askdb-it"),
		AccessKeyID:     envOr("ASKDB_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey: envOr("ASKDB_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:          "integration-tests",
		CreateBucket:    true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	payload := []byte("askdb-integration")
	if _, err := store.Put(ctx, "samples/roundtrip.parquet", bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	info, err := store.Stat(ctx, "samples/roundtrip.parquet")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Fatalf("Stat().Size = %d", info.Size)
	}
	reader, err := store.Get(ctx, "samples/roundtrip.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	got, _ := io.ReadAll(reader)
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get() payload = %q", got)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
