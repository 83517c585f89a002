package render

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

var bannerPrefix = []byte("# Generated by moxnas-confd")

// Fingerprint computes a SHA-256 hash for the given configuration bytes.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ChecksumOfConfig fingerprints on-disk configuration content the same
// way Render fingerprints a candidate: the generated-at banner, if
// present, is excluded. Lets a restarted engine recognize a live file
// it wrote itself.
func ChecksumOfConfig(content []byte) string {
	if bytes.HasPrefix(content, bannerPrefix) {
		if idx := bytes.IndexByte(content, '\n'); idx >= 0 {
			content = content[idx+1:]
		}
	}
	return Fingerprint(content)
}
