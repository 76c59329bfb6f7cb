package models

import "fmt"

type Status int

const (
	StatusSuccess Status = iota
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of fetching one key. Record is set only for
// StatusSuccess and Reason only for StatusFailed.
type Outcome struct {
	Key      RecordKey  `json:"protein_id"`
	Status   Status     `json:"-"`
	Record   *RawRecord `json:"record,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Attempts int        `json:"attempts"`
}

func Success(record RawRecord, attempts int) Outcome {
	return Outcome{Key: record.Key, Status: StatusSuccess, Record: &record, Attempts: attempts}
}

func NotFound(key RecordKey, attempts int) Outcome {
	return Outcome{Key: key, Status: StatusNotFound, Attempts: attempts}
}

func Failed(key RecordKey, reason string, attempts int) Outcome {
	return Outcome{Key: key, Status: StatusFailed, Reason: reason, Attempts: attempts}
}

func (o Outcome) OK() bool {
	return o.Status == StatusSuccess && o.Record != nil
}

// LogStatus is the status string written to the run log.
func (o Outcome) LogStatus() string {
	if o.OK() {
		return "Success"
	}
	return "No data"
}

// Name is the display name for successful outcomes, Protein_<key> otherwise.
func (o Outcome) Name() string {
	if o.Record != nil {
		return o.Record.Name()
	}
	return fmt.Sprintf("Protein_%d", o.Key)
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusFailed:
		return fmt.Sprintf("%d: %s (%s)", o.Key, o.Status, o.Reason)
	default:
		return fmt.Sprintf("%d: %s", o.Key, o.Status)
	}
}
