// Package runid derives stable identifiers for text runs.
package runid

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"

	"github.com/google/uuid"
)

// idBytes is the truncated hash width (128 bits).
const idBytes = 16

// pointNamespace scopes vector-index point IDs derived from run IDs.
var pointNamespace = uuid.MustParse("6f1d3c2a-93c4-4f8e-9a57-2c1b0e7d4a61")

// Generate returns a deterministic identifier for a run.
// The inputs are joined into a canonical string, hashed with SHA-256, truncated to 16 bytes and
// encoded as unpadded URL-safe base64, so the same run keeps its ID across restarts and machines.
// Parameters:
//   - seriesKey: series or source key the run belongs to.
//   - startFrameLabel: label of the frame where the run was first observed.
//   - startTimestamp: start time in seconds; rendered with millisecond precision.
//   - text: detected text of the run.
//
// Returns:
//   - string: 22-character identifier.
func Generate(seriesKey, startFrameLabel string, startTimestamp float64, text string) string {
	canonical := seriesKey + "_" + startFrameLabel + "_" + strconv.FormatFloat(startTimestamp, 'f', 3, 64) + "_" + text
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:idBytes])
}

// PointID maps a run ID onto a UUID, as required by the vector index.
func PointID(runID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(runID)).String()
}
