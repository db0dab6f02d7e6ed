package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// StageProgress is the finer-grained progress signal some job types embed
// in their details payload. When present it supersedes task counting.
type StageProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// JobDetails is the decoded form of a job's details column. The column
// itself stays an opaque JSON blob in the store; consumers decode it
// through here and resolve the stage label per job type instead of
// probing raw fields.
type JobDetails struct {
	Stage              string         `json:"stage,omitempty"`
	StageProgress      *StageProgress `json:"stage_progress,omitempty"`
	ConsoleLog         []string       `json:"console_log,omitempty"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
}

// DecodeDetails decodes a job's details blob. A nil or empty blob decodes
// to the zero value.
func DecodeDetails(raw datatypes.JSON) (JobDetails, error) {
	var d JobDetails
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return JobDetails{}, fmt.Errorf("failed to decode job details: %w", err)
	}
	return d, nil
}

// stageLabels maps the known stages of each job type to display labels.
var stageLabels = map[JobType]map[string]string{
	JobTypeFirmwareUpdate: {
		"downloading": "Downloading firmware",
		"staging":     "Staging firmware image",
		"flashing":    "Flashing firmware",
		"rebooting":   "Rebooting host",
		"verifying":   "Verifying firmware version",
	},
	JobTypeRollingClusterUpdate: {
		"draining":  "Draining host",
		"updating":  "Updating host",
		"restoring": "Restoring host to cluster",
	},
	JobTypeVMMigration: {
		"precopy": "Pre-copying memory",
		"cutover": "Cutting over",
		"cleanup": "Cleaning up source",
	},
	JobTypeDiscoveryScan: {
		"scanning":  "Scanning address range",
		"probing":   "Probing endpoints",
		"importing": "Importing discovered hosts",
	},
}

// StageLabel resolves a human-readable label for a stage, per job type.
// Stages without a known label fall back to the stage name itself with
// underscores replaced.
func StageLabel(t JobType, stage string) string {
	if m, ok := stageLabels[t]; ok {
		if label, ok := m[stage]; ok {
			return label
		}
	}
	return strings.ReplaceAll(stage, "_", " ")
}

// Label renders the stage progress label for a job type, e.g.
// "Flashing firmware (2/5)". Returns "" when no stage is set.
func (d JobDetails) Label(t JobType) string {
	if d.Stage == "" {
		return ""
	}
	label := StageLabel(t, d.Stage)
	if d.StageProgress != nil && d.StageProgress.Total > 0 {
		return fmt.Sprintf("%s (%d/%d)", label, d.StageProgress.Current, d.StageProgress.Total)
	}
	return label
}

// WithCancellationReason returns a copy of the raw details blob with the
// cancellation_reason note merged in. Unknown fields in the original blob
// are preserved.
func WithCancellationReason(raw datatypes.JSON, reason string) (datatypes.JSON, error) {
	m := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			// Corrupt details must not block a cancellation.
			m = map[string]interface{}{}
		}
	}
	m["cancellation_reason"] = reason
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode details: %w", err)
	}
	return datatypes.JSON(out), nil
}
