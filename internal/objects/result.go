package objects

import "time"

// CheckResult carries the outcome of a plugin execution (or a submitted
// passive result) back to the scheduler loop.
type CheckResult struct {
	ID            ID
	CheckType     int // CheckTypeActive or CheckTypePassive
	CheckOptions  int
	ReturnCode    int
	Output        string
	StartTime     time.Time
	FinishTime    time.Time
	EarlyTimeout  bool
	Abnormal      bool // the plugin did not exit normally
	Latency       float64
	ExecutionTime float64
}
