package bucket

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	abs, err := filepath.Abs("testdata/table")
	require.NoError(t, err)

	for _, tc := range []struct {
		root     string
		expected Location
		err      bool
	}{
		{root: "testdata/table", expected: Location{Backend: Filesystem, Bucket: abs}},
		{root: "file:///tmp/tables/t1/", expected: Location{Backend: Filesystem, Bucket: "/tmp/tables/t1/"}},
		{root: "s3://my-bucket/path/to/table/", expected: Location{Backend: S3, Bucket: "my-bucket", Prefix: "path/to/table"}},
		{root: "s3://my-bucket", expected: Location{Backend: S3, Bucket: "my-bucket"}},
		{root: "s3:///no-bucket", err: true},
		{root: "gs://bucket/table", err: true},
	} {
		t.Run(tc.root, func(t *testing.T) {
			loc, err := ParseLocation(tc.root)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, loc)
		})
	}
}

func TestConfig_ApplyOptions(t *testing.T) {
	var cfg Config
	cfg.S3.Region = "eu-west-1"

	out, err := cfg.ApplyOptions(map[string]string{
		"aws_region":            "us-east-2",
		"endpoint":              "http://localhost:9000",
		"aws_access_key_id":     "key",
		"aws_secret_access_key": "secret",
		"allow_http":            "true",
		"something_else":        "ignored",
	}, log.NewNopLogger())
	require.NoError(t, err)

	require.Equal(t, "eu-west-1", cfg.S3.Region, "the receiver is not modified")
	require.Equal(t, "us-east-2", out.S3.Region)
	require.Equal(t, "http://localhost:9000", out.S3.Endpoint)
	require.Equal(t, "key", out.S3.AccessKeyID)
	require.Equal(t, "secret", out.S3.SecretAccessKey.String())
	require.True(t, out.S3.Insecure)

	_, err = cfg.ApplyOptions(map[string]string{"skip_signature": "maybe"}, nil)
	require.Error(t, err)
}

func TestNewClient_Filesystem(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "_delta_log"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_delta_log", "00000000000000000000.json"), []byte("0123456789"), 0o644))

	client, stats, err := NewClient(dir, Config{}, "test", log.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer client.Close()

	var names []string
	require.NoError(t, client.Iter(t.Context(), "_delta_log/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	require.Equal(t, []string{"_delta_log/00000000000000000000.json"}, names)

	rc, err := client.GetRange(t.Context(), "_delta_log/00000000000000000000.json", 2, 3)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, []byte("234"), data)

	require.NoError(t, client.Upload(t.Context(), "other", bytes.NewReader([]byte("x"))))

	require.EqualValues(t, 1, stats.Iters.Load())
	require.EqualValues(t, 1, stats.GetRanges.Load())
	require.EqualValues(t, 3, stats.BytesRead.Load())
}
