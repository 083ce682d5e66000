package bucket

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/s3"
	objstoretracing "github.com/thanos-io/objstore/tracing/opentracing"
)

const (
	// S3 is the value for the S3 storage backend.
	S3 = "s3"

	// Filesystem is the value for the filesystem storage backend.
	Filesystem = "filesystem"
)

var (
	SupportedBackends = []string{S3, Filesystem}

	ErrUnsupportedStorageBackend = errors.New("unsupported storage backend")
)

// S3Config holds the S3 settings that cannot be derived from a table URL.
type S3Config struct {
	Endpoint        string         `yaml:"endpoint"`
	Region          string         `yaml:"region"`
	AccessKeyID     string         `yaml:"access_key_id"`
	SecretAccessKey flagext.Secret `yaml:"secret_access_key"`
	Insecure        bool           `yaml:"insecure"`
	Anonymous       bool           `yaml:"anonymous"`
}

// RegisterFlagsWithPrefix registers the S3 flags with f.
func (cfg *S3Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Endpoint, prefix+"s3.endpoint", "", "The S3 endpoint to connect to. Defaults to the AWS endpoint of the region.")
	f.StringVar(&cfg.Region, prefix+"s3.region", "", "The S3 region.")
	f.StringVar(&cfg.AccessKeyID, prefix+"s3.access-key-id", "", "The S3 access key ID. If empty, credentials are taken from the environment.")
	f.Var(&cfg.SecretAccessKey, prefix+"s3.secret-access-key", "The S3 secret access key.")
	f.BoolVar(&cfg.Insecure, prefix+"s3.insecure", false, "Connect to the S3 endpoint over plain HTTP.")
	f.BoolVar(&cfg.Anonymous, prefix+"s3.anonymous", false, "Do not sign S3 requests.")
}

// Config holds configuration for accessing table storage.
type Config struct {
	S3 S3Config `yaml:"s3"`
}

// RegisterFlags registers the storage flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("storage.", f)
}

// RegisterFlagsWithPrefix registers the storage flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.S3.RegisterFlagsWithPrefix(prefix, f)
}

// ApplyOptions returns a copy of cfg overridden by the recognised engine
// options. Unrecognised options are logged and ignored.
func (cfg Config) ApplyOptions(opts map[string]string, logger log.Logger) (Config, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	for k, v := range opts {
		switch strings.ToLower(k) {
		case "aws_region", "region":
			cfg.S3.Region = v
		case "aws_endpoint", "endpoint", "aws_endpoint_url":
			cfg.S3.Endpoint = v
		case "aws_access_key_id", "access_key_id":
			cfg.S3.AccessKeyID = v
		case "aws_secret_access_key", "secret_access_key":
			cfg.S3.SecretAccessKey = flagext.SecretWithValue(v)
		case "allow_http", "aws_allow_http":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return cfg, fmt.Errorf("option %s: %w", k, err)
			}
			cfg.S3.Insecure = b
		case "skip_signature", "aws_skip_signature":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return cfg, fmt.Errorf("option %s: %w", k, err)
			}
			cfg.S3.Anonymous = b
		default:
			level.Debug(logger).Log("msg", "ignoring engine option not used by storage", "key", k)
		}
	}
	return cfg, nil
}

// Location is a parsed table root.
type Location struct {
	Backend string
	// Bucket is the S3 bucket name or the filesystem directory.
	Bucket string
	// Prefix is the table directory inside the bucket, without leading
	// or trailing slashes.
	Prefix string
}

// ParseLocation parses a table root URL. Supported forms are plain paths,
// file:// URLs and s3://bucket/prefix URLs.
func ParseLocation(root string) (Location, error) {
	if !strings.Contains(root, "://") {
		dir, err := filepath.Abs(root)
		if err != nil {
			return Location{}, err
		}
		return Location{Backend: Filesystem, Bucket: dir}, nil
	}

	u, err := url.Parse(root)
	if err != nil {
		return Location{}, fmt.Errorf("parsing table root %q: %w", root, err)
	}

	switch u.Scheme {
	case "file":
		return Location{Backend: Filesystem, Bucket: filepath.FromSlash(u.Path)}, nil
	case "s3", "s3a":
		if u.Host == "" {
			return Location{}, fmt.Errorf("table root %q has no bucket", root)
		}
		return Location{Backend: S3, Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
	default:
		return Location{}, fmt.Errorf("%w: %s", ErrUnsupportedStorageBackend, u.Scheme)
	}
}

// NewClient creates a bucket client rooted at the table directory of root.
// The returned Stats count the requests made through the client.
func NewClient(root string, cfg Config, name string, logger log.Logger, reg prometheus.Registerer) (objstore.InstrumentedBucket, *Stats, error) {
	loc, err := ParseLocation(root)
	if err != nil {
		return nil, nil, err
	}

	var client objstore.Bucket
	switch loc.Backend {
	case S3:
		client, err = newS3Client(cfg.S3, loc.Bucket, name, logger)
	case Filesystem:
		client, err = filesystem.NewBucket(loc.Bucket)
	default:
		return nil, nil, ErrUnsupportedStorageBackend
	}
	if err != nil {
		return nil, nil, err
	}

	if loc.Prefix != "" {
		client = objstore.NewPrefixedBucket(client, loc.Prefix)
	}

	stats := NewStatsBucket(client)
	level.Debug(logger).Log("msg", "created bucket client", "backend", loc.Backend, "bucket", loc.Bucket, "prefix", loc.Prefix)

	return objstoretracing.WrapWithTraces(objstore.WrapWith(stats, objstore.BucketMetrics(reg, name))), stats.Stats(), nil
}

func newS3Client(cfg S3Config, bucket, name string, logger log.Logger) (objstore.Bucket, error) {
	s3Cfg := s3.DefaultConfig
	s3Cfg.Bucket = bucket
	s3Cfg.Region = cfg.Region
	s3Cfg.Endpoint = cfg.Endpoint
	s3Cfg.Insecure = cfg.Insecure
	if !cfg.Anonymous {
		s3Cfg.AccessKey = cfg.AccessKeyID
		s3Cfg.SecretKey = cfg.SecretAccessKey.String()
	}

	if u, err := url.Parse(s3Cfg.Endpoint); err == nil && u.Host != "" {
		s3Cfg.Endpoint = u.Host
		if u.Scheme == "http" {
			s3Cfg.Insecure = true
		}
	}
	if s3Cfg.Endpoint == "" {
		s3Cfg.Endpoint = "s3.amazonaws.com"
		if cfg.Region != "" {
			s3Cfg.Endpoint = "s3." + cfg.Region + ".amazonaws.com"
		}
	}
	bkt, err := s3.NewBucketWithConfig(logger, s3Cfg, name, nil)
	if err != nil {
		return nil, err
	}
	return bkt, nil
}
