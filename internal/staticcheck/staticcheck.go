// Package staticcheck inspects generated workspaces without executing
// anything: parameter injection and unresolved placeholder scanning.
package staticcheck

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// binarySniffLen bounds how much of a file is inspected to decide
// whether it is binary.
const binarySniffLen = 8000

// CheckParameterInjection verifies each resolved parameter value
// appears somewhere in the generated files. When a parameter declares
// target files, only those are consulted. Returns one message per
// parameter whose value was not found; these are advisory findings.
func CheckParameterInjection(root string, files []string, params map[string]string, targets map[string][]string) []string {
	var messages []string

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := params[name]
		if value == "" {
			// An empty value cannot be asserted against file content.
			continue
		}

		scan := files
		if declared := targets[name]; len(declared) > 0 {
			scan = intersect(files, declared)
			if len(scan) == 0 {
				messages = append(messages, fmt.Sprintf("parameter %q: none of its target files were generated", name))
				continue
			}
		}

		if !valueAppears(root, scan, value) {
			messages = append(messages, fmt.Sprintf("parameter %q: value %q not found in any scanned file", name, value))
		}
	}
	return messages
}

// CheckUnresolvedPlaceholders scans generated text files for leftover
// substitution markers. Returns one message per offending file; any
// finding is a hard defect.
func CheckUnresolvedPlaceholders(root string, files []string, pattern string) []string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return []string{fmt.Sprintf("invalid placeholder pattern %q: %v", pattern, err)}
	}

	var messages []string
	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(root, file))
		if err != nil {
			messages = append(messages, fmt.Sprintf("read %s: %v", file, err))
			continue
		}
		if isBinary(data) {
			continue
		}
		if m := re.Find(data); m != nil {
			messages = append(messages, fmt.Sprintf("unresolved placeholder %q in %s", string(m), file))
		}
	}
	return messages
}

// valueAppears reports whether value occurs in at least one of the
// given text files.
func valueAppears(root string, files []string, value string) bool {
	needle := []byte(value)
	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(root, file))
		if err != nil {
			continue
		}
		if isBinary(data) {
			continue
		}
		if bytes.Contains(data, needle) {
			return true
		}
	}
	return false
}

// intersect returns the members of files that are also in declared.
func intersect(files, declared []string) []string {
	want := make(map[string]bool, len(declared))
	for _, d := range declared {
		want[filepath.ToSlash(d)] = true
	}
	var out []string
	for _, f := range files {
		if want[filepath.ToSlash(f)] {
			out = append(out, f)
		}
	}
	return out
}

// isBinary reports whether data looks like binary content. A NUL byte
// in the leading window is the signal.
func isBinary(data []byte) bool {
	window := data
	if len(window) > binarySniffLen {
		window = window[:binarySniffLen]
	}
	return bytes.IndexByte(window, 0) >= 0
}
