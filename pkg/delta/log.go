package delta

import (
	"bufio"
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
)

const (
	logDir = "_delta_log/"

	// maxActionSize bounds a single line of a commit file.
	maxActionSize = 64 << 20
)

// commit holds the file actions of one table version.
type commit struct {
	version int64
	adds    []*addAction
	removes []*removeAction
}

// tableLog is the replayed state of a table at a version.
type tableLog struct {
	version  int64
	protocol *protocolAction
	metadata *metadataAction
	// commits are in ascending version order.
	commits []commit
}

func commitPath(version int64) string {
	return fmt.Sprintf("%s%020d.json", logDir, version)
}

// listVersions returns the commit versions found in the log, in ascending
// order, and whether the log holds checkpoint files.
func listVersions(ctx context.Context, bkt objstore.BucketReader) ([]int64, bool, error) {
	var (
		versions   []int64
		checkpoint bool
	)
	err := bkt.Iter(ctx, logDir, func(name string) error {
		base := path.Base(name)
		switch {
		case strings.Contains(base, ".checkpoint."):
			checkpoint = true
		case len(base) == 25 && strings.HasSuffix(base, ".json"):
			v, err := strconv.ParseInt(base[:20], 10, 64)
			if err != nil {
				return nil
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "listing delta log")
	}

	slices.Sort(versions)
	return versions, checkpoint, nil
}

// replayLog reads the log of the table up to version, or up to the latest
// version if version is negative.
func replayLog(ctx context.Context, bkt objstore.BucketReader, version int64, logger log.Logger) (*tableLog, error) {
	versions, checkpoint, err := listVersions(ctx, bkt)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		if checkpoint {
			return nil, errors.Wrap(ErrUnsupportedTable, "delta log only holds checkpoints")
		}
		return nil, errors.Wrap(ErrFileNotFound, "no delta log commits found")
	}

	if versions[0] != 0 {
		if checkpoint {
			return nil, errors.Wrapf(ErrUnsupportedTable, "delta log starts at version %d, reading from checkpoints is not supported", versions[0])
		}
		return nil, errors.Wrapf(ErrInvalidLog, "delta log starts at version %d", versions[0])
	}
	for i, v := range versions {
		if v != int64(i) {
			return nil, errors.Wrapf(ErrInvalidLog, "delta log is missing version %d", i)
		}
	}

	latest := versions[len(versions)-1]
	if version < 0 {
		version = latest
	} else if version > latest {
		return nil, errors.Wrapf(ErrVersionNotFound, "version %d, latest is %d", version, latest)
	}

	tl := &tableLog{version: version}
	for v := int64(0); v <= version; v++ {
		c, err := readCommit(ctx, bkt, v, tl)
		if err != nil {
			return nil, err
		}
		tl.commits = append(tl.commits, c)
	}

	if tl.protocol == nil {
		return nil, errors.Wrap(ErrInvalidLog, "no protocol action found")
	}
	if tl.metadata == nil {
		return nil, errors.Wrap(ErrInvalidLog, "no metadata action found")
	}

	level.Debug(logger).Log("msg", "replayed delta log", "version", version, "latest", latest, "commits", len(tl.commits))
	return tl, nil
}

func readCommit(ctx context.Context, bkt objstore.BucketReader, version int64, tl *tableLog) (commit, error) {
	name := commitPath(version)
	rc, err := bkt.Get(ctx, name)
	if err != nil {
		if bkt.IsObjNotFoundErr(err) {
			return commit{}, errors.Wrap(ErrFileNotFound, name)
		}
		return commit{}, errors.Wrapf(err, "reading %s", name)
	}
	defer rc.Close()

	c := commit{version: version}

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64<<10), maxActionSize)
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}

		var a action
		if err := json.Unmarshal(raw, &a); err != nil {
			return commit{}, errors.Wrapf(ErrInvalidLog, "%s:%d: %v", name, line, err)
		}

		switch {
		case a.Protocol != nil:
			tl.protocol = a.Protocol
		case a.MetaData != nil:
			tl.metadata = a.MetaData
		case a.Add != nil:
			c.adds = append(c.adds, a.Add)
		case a.Remove != nil:
			c.removes = append(c.removes, a.Remove)
		}
	}
	if err := sc.Err(); err != nil {
		return commit{}, errors.Wrapf(err, "reading %s", name)
	}
	return c, nil
}
