package checker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

func TestParseCheckOutputShortOnly(t *testing.T) {
	p := ParseCheckOutput("OK - everything is fine", false)
	assert.Equal(t, ParsedOutput{ShortOutput: "OK - everything is fine"}, p)
}

func TestParseCheckOutputShortWithPerfdata(t *testing.T) {
	p := ParseCheckOutput("The service is OK | a=25;50;75", false)
	assert.Equal(t, "The service is OK", p.ShortOutput)
	assert.Equal(t, "", p.LongOutput)
	assert.Equal(t, "a=25;50;75", p.PerfData)
}

func TestParseCheckOutputFullFormat(t *testing.T) {
	raw := "CRITICAL - disk full | disk=95%;80;90;0;100\nPartition /var is 95% full\nConsider cleanup\n| inode=5000;10000;20000"
	p := ParseCheckOutput(raw, false)
	assert.Equal(t, "CRITICAL - disk full", p.ShortOutput)
	assert.Equal(t, `Partition /var is 95% full\nConsider cleanup`, p.LongOutput)
	assert.Equal(t, "disk=95%;80;90;0;100 inode=5000;10000;20000", p.PerfData)
}

func TestParseCheckOutputLongLineWithPerfdata(t *testing.T) {
	raw := "OK\nfirst detail\nsecond detail | b=1\nc=2"
	p := ParseCheckOutput(raw, false)
	assert.Equal(t, `first detail\nsecond detail`, p.LongOutput)
	assert.Equal(t, "b=1 c=2", p.PerfData)
}

func TestParseCheckOutputEscapedNewlines(t *testing.T) {
	raw := `WARNING - 2 of 3 up\ndb1 up\ndb2 up\ndb3 down|up=2;;;0;3`
	p := ParseCheckOutput(raw, true)
	assert.Equal(t, "WARNING - 2 of 3 up", p.ShortOutput)
	assert.Equal(t, `db1 up\ndb2 up\ndb3 down`, p.LongOutput)
	assert.Equal(t, "up=2;;;0;3", p.PerfData)

	// Without the setting the sequences are plain text.
	p = ParseCheckOutput(`A\nB`, false)
	assert.Equal(t, `A\nB`, p.ShortOutput)
	assert.Empty(t, p.LongOutput)
}

func TestUnescapeNewlines(t *testing.T) {
	assert.Equal(t, "a\nb", UnescapeNewlines(`a\nb`))
	assert.Equal(t, `a\b`, UnescapeNewlines(`a\\b`))
	assert.Equal(t, `c:\temp`, UnescapeNewlines(`c:\temp`))
	assert.Equal(t, `trailing\`, UnescapeNewlines(`trailing\`))
}

func TestLongOutputBackslashesRoundTrip(t *testing.T) {
	p := ParseCheckOutput(`OK\nC:\\new\nD:\\data`, true)
	assert.Equal(t, "OK", p.ShortOutput)
	assert.Equal(t, `C:\\new\nD:\\data`, p.LongOutput)
	assert.Equal(t, "C:\\new\nD:\\data", UnescapeNewlines(p.LongOutput))

	p = ParseCheckOutput("OK\nshare \\\\srv\\n", false)
	assert.Equal(t, "share \\\\\\\\srv\\\\n", p.LongOutput)
	assert.Equal(t, "share \\\\srv\\n", UnescapeNewlines(p.LongOutput))
}

func TestParseCheckOutputSemicolonReplacement(t *testing.T) {
	p := ParseCheckOutput("WARN; check output; more | perf=1;2;3", false)
	assert.Equal(t, "WARN: check output: more", p.ShortOutput)
	assert.Equal(t, "perf=1;2;3", p.PerfData, "perfdata keeps semicolons")
}

func TestServiceState(t *testing.T) {
	tests := []struct {
		rc       int
		timeout  bool
		abnormal bool
		want     int
	}{
		{0, false, false, objects.ServiceOK},
		{1, false, false, objects.ServiceWarning},
		{2, false, false, objects.ServiceCritical},
		{3, false, false, objects.ServiceUnknown},
		{126, false, false, objects.ServiceCritical},
		{127, false, false, objects.ServiceCritical},
		{255, false, false, objects.ServiceCritical},
		{3, true, false, objects.ServiceUnknown},
		{0, false, true, objects.ServiceCritical},
	}

	for _, tt := range tests {
		cr := &objects.CheckResult{ReturnCode: tt.rc, EarlyTimeout: tt.timeout, Abnormal: tt.abnormal}
		assert.Equal(t, tt.want, ServiceState(cr, objects.ServiceUnknown),
			"rc=%d timeout=%v abnormal=%v", tt.rc, tt.timeout, tt.abnormal)
	}
}

func TestHostState(t *testing.T) {
	tests := []struct {
		rc   int
		want int
	}{
		{0, objects.HostUp},
		{1, objects.HostUp},
		{2, objects.HostDown},
		{3, objects.HostDown},
	}

	for _, tt := range tests {
		cr := &objects.CheckResult{ReturnCode: tt.rc}
		assert.Equal(t, tt.want, HostState(cr), "rc=%d", tt.rc)
	}
	assert.Equal(t, objects.HostUnreachable, PassiveHostState(2))
}

func TestResultOutput(t *testing.T) {
	assert.Contains(t, ResultOutput(&objects.CheckResult{ReturnCode: 127}), "plugin may be missing")
	assert.Contains(t, ResultOutput(&objects.CheckResult{ReturnCode: 126}), "not be executable")
	assert.Equal(t, "(No output returned from plugin)", ResultOutput(&objects.CheckResult{}))
	assert.Equal(t, "x", ResultOutput(&objects.CheckResult{ReturnCode: 127, Output: "x"}))
}
