package queue

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/qcqueue/internal/common"
)

// qstatFields is the column count of a `qstat -u` data row.
const qstatFields = 11

// parseQstat reads the output of `qstat -u $USER`:
//
//	maple:
//	                                                            Req'd  Req'd   Elap
//	Job ID          Username Queue    Jobname    SessID NDS TSK Memory Time  S Time
//	--------------- -------- -------- ---------- ------ --- --- ------ ----- - -----
//	819446          user     queue    C6HNpts      5085   1   1    8gb 26784 R 00:00
//
// Everything up to and including the dashed divider is skipped. Any data row
// with an unexpected column count is an error: a partially understood table
// cannot be trusted for liveness decisions.
func parseQstat(out string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	lines := strings.Split(out, "\n")
	divider := -1
	for i, line := range lines {
		if strings.Contains(line, "-----------") {
			divider = i
			break
		}
	}
	if divider < 0 {
		// qstat prints nothing at all when the user has no jobs
		if strings.TrimSpace(out) == "" {
			return ids, nil
		}
		return nil, common.StatusParseError(fmt.Sprintf("no header divider in status output:\n%s", out), nil)
	}
	for _, line := range lines[divider+1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != qstatFields {
			return nil, common.StatusParseError(
				fmt.Sprintf("want %d fields, got %d in status row %q", qstatFields, len(fields), line), nil)
		}
		ids[fields[0]] = struct{}{}
	}
	return ids, nil
}
