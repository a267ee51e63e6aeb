package sanitize

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DangerousExtensions is the hard blocklist applied regardless of any
// category allowlist: executables, scripts and server-side pages.
var DangerousExtensions = map[string]bool{
	".exe": true, ".com": true, ".bat": true, ".cmd": true, ".scr": true,
	".pif": true, ".msi": true, ".dll": true, ".jar": true,
	".vbs": true, ".vbe": true, ".js": true, ".wsf": true, ".hta": true,
	".sh": true, ".bash": true, ".ps1": true, ".psm1": true,
	".php": true, ".php3": true, ".php4": true, ".php5": true, ".phtml": true,
	".asp": true, ".aspx": true, ".jsp": true, ".jspx": true,
	".py": true, ".pl": true, ".rb": true, ".cgi": true,
}

// ValidateExtension extracts the final extension and checks it against the
// category allowlist and the dangerous blocklist. The blocklist wins even if
// a category allowlist mistakenly includes a dangerous extension.
func ValidateExtension(filename string, allowed map[string]bool) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || ext == "." {
		return "", fmt.Errorf("filename has no extension")
	}
	if DangerousExtensions[ext] {
		return "", fmt.Errorf("extension %s is blocked", ext)
	}
	if !allowed[ext] {
		return "", fmt.Errorf("extension %s is not allowed for this category", ext)
	}
	return ext, nil
}

// CheckDoubleExtension rejects extension smuggling: any middle extension
// segment matching the dangerous blocklist fails, catching names like
// "report.exe.txt" where the final segment looks benign.
func CheckDoubleExtension(filename string) error {
	parts := strings.Split(filename, ".")
	if len(parts) < 3 {
		return nil
	}
	for _, seg := range parts[1 : len(parts)-1] {
		if DangerousExtensions["."+strings.ToLower(seg)] {
			return fmt.Errorf("dangerous middle extension .%s", strings.ToLower(seg))
		}
	}
	return nil
}

// ValidateMIME checks a declared MIME type against the category allowlist.
// The declared type is advisory: an absent header passes, since the magic
// number check is the authoritative content gate.
func ValidateMIME(declared string, allowed map[string]bool) error {
	if declared == "" {
		return nil
	}
	mime := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if !allowed[mime] {
		return fmt.Errorf("MIME type %s is not allowed for this category", mime)
	}
	return nil
}
