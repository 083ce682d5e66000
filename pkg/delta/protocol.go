package delta

import (
	"fmt"
	"slices"
)

const maxReaderVersion = 3

var supportedReaderFeatures = []string{
	"deletionVectors",
	"timestampNtz",
	"vacuumProtocolCheck",
}

// checkProtocol returns an error wrapping ErrUnsupportedTable if the table
// requires reader features the engine does not implement.
func checkProtocol(p *protocolAction, md *metadataAction) error {
	if p.MinReaderVersion > maxReaderVersion {
		return fmt.Errorf("%w: reader version %d", ErrUnsupportedTable, p.MinReaderVersion)
	}
	if p.MinReaderVersion == maxReaderVersion {
		for _, f := range p.ReaderFeatures {
			if !slices.Contains(supportedReaderFeatures, f) {
				return fmt.Errorf("%w: reader feature %q", ErrUnsupportedTable, f)
			}
		}
	}

	if mode, ok := md.Configuration["delta.columnMapping.mode"]; ok && mode != "none" {
		return fmt.Errorf("%w: column mapping mode %q", ErrUnsupportedTable, mode)
	}
	return nil
}
