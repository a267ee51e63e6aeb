// Package sanitize validates untrusted upload filenames before any content
// is read. All checks are pure string validation; traversal markers are
// rejected on the raw input so an attack string is reported rather than
// silently normalized away by basename extraction.
package sanitize

import (
	"fmt"
	"strings"
)

const maxFilenameLength = 255

// reservedNames are Windows device names that must not be used as a basename
// (compared case-insensitively, extension stripped).
var reservedNames = map[string]bool{
	"CON": true, "AUX": true, "PRN": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Filename validates and normalizes a client-declared filename. The returned
// name is a plain basename: no path separators, no null bytes, no control
// characters, no leading dot, at most 255 characters, not a reserved device
// name. Validation happens before any normalization, so a raw input carrying
// traversal markers fails instead of being quietly reduced to its basename.
func Filename(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("filename is empty")
	}

	if strings.Contains(raw, "..") {
		return "", fmt.Errorf("filename contains path traversal sequence")
	}
	if strings.ContainsAny(raw, "/\\") {
		return "", fmt.Errorf("filename contains path separators")
	}
	if strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("filename contains null byte")
	}
	for i, r := range raw {
		if r == '\r' || r == '\n' {
			return "", fmt.Errorf("filename contains line break at position %d", i)
		}
		if r < 32 {
			return "", fmt.Errorf("filename contains control character at position %d", i)
		}
	}

	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("filename is empty after cleanup")
	}

	if strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("hidden filenames are not allowed")
	}
	if len(name) > maxFilenameLength {
		return "", fmt.Errorf("filename exceeds %d characters", maxFilenameLength)
	}

	base := name
	if idx := strings.LastIndex(name, "."); idx > 0 {
		base = name[:idx]
	}
	if reservedNames[strings.ToUpper(base)] {
		return "", fmt.Errorf("filename %q is a reserved device name", base)
	}

	return name, nil
}
