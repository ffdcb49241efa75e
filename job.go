package lcservice

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrJobCauseRequired is returned when a new job is reported without a cause.
var ErrJobCauseRequired = errors.New(`"cause" is required for new jobs`)

// Job tracks long-running work across several asynchronous round-trips. A job
// created with NewJob is new; one rebuilt with ResumeJob only carries the
// changes made during the current call, which the platform merges.
type Job struct {
	id    string
	isNew bool
	start int64
	end   int64
	cause string
	sids  []string
	hist  []JobEntry
}

// JobEntry is one narration line.
type JobEntry struct {
	Timestamp   int64            `json:"ts"`
	Message     string           `json:"msg"`
	Attachments []map[string]any `json:"attachments"`
	IsImportant bool             `json:"is_important"`
}

// JobSnapshot is the wire form of a Job.
type JobSnapshot struct {
	ID      string     `json:"id"`
	Start   int64      `json:"start,omitempty"`
	End     int64      `json:"end,omitempty"`
	Cause   string     `json:"cause,omitempty"`
	Sensors []string   `json:"sid,omitempty"`
	History []JobEntry `json:"hist,omitempty"`
}

// NewJob starts a job with a fresh identifier.
func NewJob() *Job {
	return &Job{
		id:    uuid.NewString(),
		isNew: true,
		start: time.Now().Unix(),
	}
}

// ResumeJob refers to a job created during an earlier call.
func ResumeJob(id string) *Job {
	return &Job{id: id}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// AddSensor records an endpoint involved in the job.
func (j *Job) AddSensor(sid string) { j.sids = append(j.sids, sid) }

// SetCause sets the free-text reason the job exists.
func (j *Job) SetCause(cause string) { j.cause = cause }

// Close marks the job finished. Closing is informational; the job can still
// be narrated.
func (j *Job) Close() { j.end = time.Now().UnixMilli() }

// Narrate appends a history entry.
func (j *Job) Narrate(msg string, important bool, attachments ...Attachment) {
	entry := JobEntry{
		Timestamp:   time.Now().UnixMilli(),
		Message:     msg,
		Attachments: make([]map[string]any, 0, len(attachments)),
		IsImportant: important,
	}
	for _, a := range attachments {
		entry.Attachments = append(entry.Attachments, a.AttachmentData())
	}
	j.hist = append(j.hist, entry)
}

// Snapshot returns the wire form of the job.
func (j *Job) Snapshot() (JobSnapshot, error) {
	if j.isNew && j.cause == "" {
		return JobSnapshot{}, fmt.Errorf("job %s: %w", j.id, ErrJobCauseRequired)
	}
	return JobSnapshot{
		ID:      j.id,
		Start:   j.start,
		End:     j.end,
		Cause:   j.cause,
		Sensors: j.sids,
		History: j.hist,
	}, nil
}

func (j *Job) MarshalJSON() ([]byte, error) {
	snap, err := j.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// Attachment is rich content added to a job narration.
type Attachment interface {
	AttachmentData() map[string]any
}

type attachment map[string]any

func (a attachment) AttachmentData() map[string]any { return a }

// HexDump attaches binary data rendered as a hex dump.
func HexDump(caption string, data []byte) Attachment {
	return attachment{
		"att_type": "hex_dump",
		"caption":  caption,
		"data":     hex.EncodeToString(data),
	}
}

// Table attaches tabular data. Every row should have len(headers) cells.
func Table(caption string, headers []string, rows ...[]any) Attachment {
	if rows == nil {
		rows = [][]any{}
	}
	return attachment{
		"att_type": "table",
		"caption":  caption,
		"headers":  headers,
		"rows":     rows,
	}
}

// YAMLData attaches v rendered as YAML.
func YAMLData(caption string, v any) (Attachment, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml attachment %q: %w", caption, err)
	}
	return attachment{
		"att_type": "yaml",
		"caption":  caption,
		"data":     string(b),
	}, nil
}

// JSONData attaches v rendered as indented JSON.
func JSONData(caption string, v any) (Attachment, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json attachment %q: %w", caption, err)
	}
	return attachment{
		"att_type": "json",
		"caption":  caption,
		"data":     string(b),
	}, nil
}
