package minio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/filestore"
)

const manifestBody = `{"version":1}`

// fakeS3 answers the handful of path-style requests the driver issues for
// bucket "manifests".
func fakeS3(t *testing.T) *httptest.Server {
	t.Helper()
	modified := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
		if bucket != "manifests" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch {
		case key == "":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			_, _ = io.Copy(io.Discard, r.Body)
			w.Header().Set("ETag", `"etag-put"`)
			w.WriteHeader(http.StatusOK)
		case key == "missing.json":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Length", strconv.Itoa(len(manifestBody)))
			w.Header().Set("ETag", `"etag-get"`)
			w.Header().Set("Last-Modified", modified)
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, manifestBody)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDriver(t *testing.T) *Driver {
	t.Helper()
	srv := fakeS3(t)
	cfg := filestore.DefaultConfig(strings.TrimPrefix(srv.URL, "http://"), "", "", "manifests")
	cfg.Region = "us-east-1"
	d, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return d
}

func TestDriver_PutGetStat(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()
	require.NoError(t, d.Ping(ctx))

	info, err := d.Put(ctx, "protodb.json", strings.NewReader(manifestBody), int64(len(manifestBody)), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "protodb.json", info.Key)
	assert.Equal(t, "etag-put", info.ETag)

	st, err := d.Stat(ctx, "protodb.json")
	require.NoError(t, err)
	assert.Equal(t, int64(len(manifestBody)), st.Size)
	assert.Equal(t, "etag-get", st.ETag)

	obj, err := d.Get(ctx, "protodb.json")
	require.NoError(t, err)
	defer obj.Close()
	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, manifestBody, string(body))
	assert.Equal(t, "application/json", obj.Info().ContentType)
}

func TestDriver_StatMissing(t *testing.T) {
	d := newDriver(t)
	_, err := d.Stat(context.Background(), "missing.json")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestDriver_RejectsBadKeys(t *testing.T) {
	d := newDriver(t)
	_, err := d.Put(context.Background(), "../escape.json", strings.NewReader("x"), 1, "")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestNew_NeedsBucket(t *testing.T) {
	_, err := New(context.Background(), filestore.DefaultConfig("localhost:9000", "a", "b", ""))
	assert.True(t, errs.IsConfig(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no such key", miniogo.ErrorResponse{Code: "NoSuchKey"}, errs.ErrKindNotFound},
		{"access denied", miniogo.ErrorResponse{Code: "AccessDenied"}, errs.ErrKindPermissionDenied},
		{"bad name", miniogo.ErrorResponse{Code: "InvalidBucketName"}, errs.ErrKindInvalidInput},
		{"slow down", miniogo.ErrorResponse{Code: "SlowDown"}, errs.ErrKindTimeout},
		{"status 404", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, errs.ErrKindNotFound},
		{"status 403", miniogo.ErrorResponse{StatusCode: http.StatusForbidden}, errs.ErrKindPermissionDenied},
		{"other", errors.New("connection reset"), errs.ErrKindConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errs.KindOf(mapError(tt.err, "op")))
		})
	}
	assert.Nil(t, mapError(nil, "op"))
	assert.True(t, alreadyOwned(miniogo.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}))
}
