package segment

import (
	"time"

	"github.com/prometheus/common/model"
)

// Policy holds the thresholds that trigger sealing. A zero threshold
// disables that trigger. MaxAge parses from YAML in duration notation
// such as "6h" or "90m".
type Policy struct {
	MaxRows          int            `yaml:"max_rows"`
	MaxAge           model.Duration `yaml:"max_age"`
	MaxProcessMemory uint64         `yaml:"max_process_memory_bytes"`
}

// DefaultPolicy seals at one million rows or six hours, with the process
// memory trigger disabled.
func DefaultPolicy() Policy {
	return Policy{
		MaxRows: 1_000_000,
		MaxAge:  model.Duration(6 * time.Hour),
	}
}

// Due reports whether the segment has crossed a seal threshold and names the
// trigger for logs and metrics. processRSS is the ingesting process's
// resident memory; pass 0 when unknown.
func (p Policy) Due(s *Segment, processRSS uint64) (bool, string) {
	if p.MaxRows > 0 && s.RowCount() >= p.MaxRows {
		return true, "rows"
	}
	if p.MaxAge > 0 && s.Age() >= time.Duration(p.MaxAge) {
		return true, "age"
	}
	if p.MaxProcessMemory > 0 && processRSS >= p.MaxProcessMemory {
		return true, "memory"
	}
	return false, ""
}
