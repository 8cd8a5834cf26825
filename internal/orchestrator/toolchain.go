package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/templar-ci/templar/internal/exec"
	"github.com/templar-ci/templar/pkg/models"
)

var versionRe = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?`)

// probeToolchain checks that the required toolchain is present and new
// enough. It returns an empty string when satisfied, otherwise a
// warning message. A degraded host never fails the run here; the build
// step will surface the hard failure if the toolchain truly cannot
// work.
func (o *Orchestrator) probeToolchain(ctx context.Context, req *models.ToolchainRequirement) string {
	args := req.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}

	res, err := o.runner.Run(ctx, req.Name, args, exec.Options{Timeout: toolchainProbeTimeout})
	if err != nil {
		return fmt.Sprintf("toolchain %q not found: %v", req.Name, err)
	}
	if res.TimedOut {
		return fmt.Sprintf("toolchain %q version probe timed out", req.Name)
	}
	if res.ExitCode != 0 {
		return fmt.Sprintf("toolchain %q version probe exited %d", req.Name, res.ExitCode)
	}
	if req.MinVersion == "" {
		return ""
	}

	got := versionRe.FindString(res.Stdout + " " + res.Stderr)
	if got == "" {
		return fmt.Sprintf("toolchain %q version could not be determined from probe output", req.Name)
	}
	if compareVersions(got, req.MinVersion) < 0 {
		return fmt.Sprintf("toolchain %q version %s is below required %s", req.Name, got, req.MinVersion)
	}
	return ""
}

// compareVersions compares dotted numeric versions. Missing components
// count as zero. Returns -1, 0, or 1.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
