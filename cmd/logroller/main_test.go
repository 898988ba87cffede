package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/y-scope/logroller/internal/s3client"
)

type request struct {
	method string
	path   string
	body   string
}

// fakeStore answers S3 requests locally.
type fakeStore struct {
	mu       sync.Mutex
	requests []request
	status   int
}

func (f *fakeStore) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}
	f.mu.Lock()
	f.requests = append(f.requests, request{method: req.Method, path: req.URL.Path, body: string(body)})
	status := f.status
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func (f *fakeStore) puts() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []request
	for _, r := range f.requests {
		if r.method == http.MethodPut {
			out = append(out, r)
		}
	}
	return out
}

// setEnv configures logroller for a local store and hides any ambient AWS configuration.
func setEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "aws-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "aws-credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_ENDPOINT_URL", "")
	t.Setenv("AWS_CA_BUNDLE", "")

	t.Setenv("LOGROLLER_BUCKET", "logs")
	t.Setenv("LOGROLLER_ENDPOINT", "http://minio:9000")
	t.Setenv("LOGROLLER_ACCESS_KEY", "AKIDSTATIC")
	t.Setenv("LOGROLLER_SECRET_KEY", "static-secret")
	t.Setenv("LOGROLLER_FOLDER_PREFIX", "app/")
	t.Setenv("LOGROLLER_FILE_NAME", filepath.Join(dir, "app.log"))
	return dir
}

func Test_doMain(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		expOut string
	}{
		{
			name:   "version",
			args:   []string{"version"},
			expOut: "logroller: dev\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			require.NoError(t, doMain(context.Background(), nil, out, os.Stderr, tt.args))
			require.Equal(t, tt.expOut, out.String())
		})
	}
}

func Test_doMain_env(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, doMain(context.Background(), nil, out, os.Stderr, []string{"env"}))
	require.Contains(t, out.String(), "LOGROLLER_BUCKET")
	require.Contains(t, out.String(), "LOGROLLER_ASSUME_ROLE_ARN")
}

func Test_doMain_invalidConfig(t *testing.T) {
	setEnv(t)
	t.Setenv("LOGROLLER_BUCKET", "")
	t.Setenv("LOGROLLER_REGION", "Not A Region")

	err := doMain(context.Background(), nil, io.Discard, io.Discard, []string{"check"})
	require.ErrorContains(t, err, "upload.bucket")
	require.ErrorContains(t, err, "upload.region")
}

func Test_doMain_check(t *testing.T) {
	setEnv(t)
	store := &fakeStore{}

	out := &bytes.Buffer{}
	err := doMain(context.Background(), nil, out, io.Discard, []string{"check"}, s3client.WithHTTPClient(store))
	require.NoError(t, err)
	require.Equal(t, "bucket logs is reachable\n", out.String())
}

func Test_doMain_checkMissingBucket(t *testing.T) {
	setEnv(t)
	store := &fakeStore{status: http.StatusNotFound}

	err := doMain(context.Background(), nil, io.Discard, io.Discard, []string{"check"}, s3client.WithHTTPClient(store))
	require.ErrorContains(t, err, `bucket "logs" could not be found`)
}

func Test_doMain_upload(t *testing.T) {
	dir := setEnv(t)
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")
	require.NoError(t, os.WriteFile(first, []byte("first\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("second\n"), 0o644))
	store := &fakeStore{}

	err := doMain(context.Background(), nil, io.Discard, io.Discard,
		[]string{"upload", first, second}, s3client.WithHTTPClient(store))
	require.NoError(t, err)

	puts := store.puts()
	require.Len(t, puts, 2)
	require.True(t, strings.HasPrefix(puts[0].path, "/logs/app/day="), puts[0].path)
	require.True(t, strings.HasSuffix(puts[0].path, "-first.log"), puts[0].path)
	require.True(t, strings.HasSuffix(puts[1].path, "-second.log"), puts[1].path)
}

func Test_doMain_run(t *testing.T) {
	setEnv(t)
	t.Setenv("LOGROLLER_MAX_SIZE", "16")
	store := &fakeStore{}

	stdin := strings.NewReader("line-01\nline-02\nline-03\nline-04\nline-05\nline-06\n")
	out := &bytes.Buffer{}
	err := doMain(context.Background(), stdin, out, io.Discard,
		[]string{"run", "--tee"}, s3client.WithHTTPClient(store))
	require.NoError(t, err)

	puts := store.puts()
	require.Len(t, puts, 3)
	require.Contains(t, puts[0].body, "line-01\nline-02\n")
	require.Contains(t, puts[1].body, "line-03\nline-04\n")
	require.Contains(t, puts[2].body, "line-05\nline-06\n")
	for _, put := range puts {
		require.True(t, strings.HasSuffix(put.path, "-app.log.1"), put.path)
	}
	require.Equal(t, "line-01\nline-02\nline-03\nline-04\nline-05\nline-06\n", out.String())
}

func Test_doMain_runCancelledWhileReading(t *testing.T) {
	dir := setEnv(t)
	t.Setenv("LOGROLLER_MAX_SIZE", "256")
	store := &fakeStore{}

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pr.Close() })
	go func() {
		for i := 0; ; i++ {
			if _, err := fmt.Fprintf(pw, "line-%06d\n", i); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- doMain(ctx, pr, io.Discard, io.Discard, []string{"run"}, s3client.WithHTTPClient(store))
	}()

	require.Eventually(t, func() bool { return len(store.puts()) >= 2 }, 10*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}

	// Input still arriving during shutdown must not land behind the final rollover.
	active, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	require.Empty(t, string(active))

	puts := store.puts()
	last := puts[len(puts)-1]
	require.NotEmpty(t, last.body)
	require.True(t, strings.HasSuffix(last.body, "\n"), last.body)
}

func Test_gatedWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	gate := &gatedWriter{w: buf}

	n, err := gate.Write([]byte("before\n"))
	require.NoError(t, err)
	require.Equal(t, 7, n)

	gate.close()
	n, err = gate.Write([]byte("after\n"))
	require.ErrorIs(t, err, errInputClosed)
	require.Zero(t, n)
	require.Equal(t, "before\n", buf.String())
}
