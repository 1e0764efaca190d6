package sampling

import (
	"os"
	"strconv"
	"strings"
)

// btfInfo describes BTF/CO-RE availability on the running kernel,
// adapted from the teacher's internal/ebpf/btf.go detection logic
// (kept verbatim: it is pure procfs/sysfs probing, equally applicable
// to gating our page-fault fallback probe as it was to gating the
// teacher's tcpretrans collector).
type btfInfo struct {
	available     bool
	kernelVersion string
	major, minor  int
	coreSupport   bool
}

func detectBTF() *btfInfo {
	info := &btfInfo{}
	info.kernelVersion = readKernelVersion()
	info.major, info.minor = parseKernelVersion(info.kernelVersion)

	if _, err := os.Stat("/sys/kernel/btf/vmlinux"); err == nil {
		info.available = true
	}
	if info.major > 5 || (info.major == 5 && info.minor >= 8) {
		info.coreSupport = true
	}
	return info
}

func readKernelVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(data))
	if len(fields) >= 3 {
		return fields[2]
	}
	return ""
}

func parseKernelVersion(version string) (int, int) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return 0, 0
	}
	major, _ := strconv.Atoi(parts[0])
	minorStr := parts[1]
	if idx := strings.IndexAny(minorStr, "-+~"); idx >= 0 {
		minorStr = minorStr[:idx]
	}
	minor, _ := strconv.Atoi(minorStr)
	return major, minor
}
