package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainTrace prefixes the digest input. The version suffix allows the
// canonical form to change without colliding with old digests.
const DomainTrace = "simkernel/trace/v1"

// Kind distinguishes how the manager handed control to a process.
type Kind string

const (
	// KindDispatch is a new target bound to a pooled process.
	KindDispatch Kind = "dispatch"
	// KindResume wakes a process parked in a scheduled wait.
	KindResume Kind = "resume"
	// KindCondition wakes a process whose wait condition became true.
	KindCondition Kind = "condition"
)

// Record is one hand-off from the manager to a process.
type Record struct {
	Seq         int64  `json:"seq"`
	AddedTick   int64  `json:"added_tick"`
	SchedTick   int64  `json:"sched_tick"`
	Priority    int    `json:"priority"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

// Canonical returns the record's canonical single-line form.
//
// Format: seq<TAB>sched<TAB>prio<TAB>added<TAB>kind<TAB>"description"
func (r Record) Canonical() string {
	return fmt.Sprintf("%d\t%d\t%d\t%d\t%s\t%s",
		r.Seq, r.SchedTick, r.Priority, r.AddedTick, r.Kind,
		strconv.Quote(norm.NFC.String(r.Description)),
	)
}

// Canonical returns the canonical form of a whole trace, one record per line.
func Canonical(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Canonical())
		b.WriteByte('\n')
	}
	return b.String()
}

// Digest computes a content hash of a trace.
// Format: SHA256(domain + 0x00 + canonical)
func Digest(records []Record) string {
	h := sha256.New()
	h.Write([]byte(DomainTrace))
	h.Write([]byte{0x00})
	h.Write([]byte(Canonical(records)))
	return hex.EncodeToString(h.Sum(nil))
}

// FirstDivergence returns the index of the first record that differs between
// two traces, or -1 when they are identical. A length mismatch diverges at
// the end of the shorter trace.
func FirstDivergence(a, b []Record) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].Canonical() != b[i].Canonical() {
			return i
		}
	}
	if len(a) != len(b) {
		return n
	}
	return -1
}
