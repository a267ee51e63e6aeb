// Package storage derives collision-resistant storage paths confined to a
// media root and commits accepted uploads to disk. Path containment is the
// primary defense against traversal escaping the root: after canonicalization
// every built path must still live under the canonical root.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/uploadguard/uploadguard/internal/models"
)

var componentChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PathBuilder builds storage paths under a canonicalized root.
type PathBuilder struct {
	root string
}

func NewPathBuilder(root string) (*PathBuilder, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing media root: %w", err)
	}
	return &PathBuilder{root: filepath.Clean(abs)}, nil
}

func (b *PathBuilder) Root() string {
	return b.root
}

// SecurePath is the derived, containment-checked destination of an upload.
type SecurePath struct {
	Absolute string
	Filename string
}

// Build derives root/category/folderTag/uniqueName+ext and verifies the
// canonical result still starts with the canonical root.
func (b *PathBuilder) Build(category models.FileCategory, folderTag, ownerID, ext string) (*SecurePath, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner identifier is required")
	}

	tag := sanitizeComponent(folderTag)
	if tag == "" {
		return nil, fmt.Errorf("folder tag %q sanitizes to empty", folderTag)
	}
	if strings.Contains(tag, "..") {
		return nil, fmt.Errorf("folder tag contains traversal sequence")
	}

	name := uniqueName(ownerID) + strings.ToLower(ext)

	path := filepath.Join(b.root, string(category), tag, name)
	canonical := filepath.Clean(path)
	if !strings.HasPrefix(canonical, b.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("derived path escapes media root")
	}

	return &SecurePath{Absolute: canonical, Filename: name}, nil
}

// uniqueName combines the sanitized owner, a timestamp, a random suffix and a
// truncated SHA-256 of the combination. The hash keeps names collision
// resistant and avoids leaking upload ordering beyond the timestamp prefix.
func uniqueName(ownerID string) string {
	owner := sanitizeComponent(ownerID)
	if len(owner) > 16 {
		owner = owner[:16]
	}

	ts := time.Now().UTC().Format("20060102T150405")
	suffix := rand.Intn(1_000_000)

	seed := fmt.Sprintf("%s-%s-%06d", owner, ts, suffix)
	sum := sha256.Sum256([]byte(seed))

	return fmt.Sprintf("%s_%s_%06d_%s", owner, ts, suffix, hex.EncodeToString(sum[:])[:12])
}

func sanitizeComponent(s string) string {
	s = componentChars.ReplaceAllString(s, "")
	s = strings.Trim(s, "._-")
	return s
}

// Save writes content to its secure path, creating parent directories under
// the root. Files are not world readable.
func Save(path *SecurePath, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path.Absolute), 0o750); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}
	if err := os.WriteFile(path.Absolute, content, 0o640); err != nil {
		return fmt.Errorf("writing upload: %w", err)
	}
	return nil
}

// ContentDigest returns the BLAKE2b-256 digest of the upload body, recorded
// in the audit bundle for dedup and integrity checks.
func ContentDigest(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
