package utils

import (
	"crypto/rand"
	"encoding/hex"
	"path"
	"strings"

	"github.com/google/uuid"
)

// TokenLength is the length of the hex-encoded auth token.
const TokenLength = 40

// GenerateToken returns a random opaque auth token of TokenLength hex characters.
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateFileName returns a fresh uuid-based file name under dir with the
// given extension. An extension that is not a dot followed by 1-9 lowercase
// alphanumerics is dropped.
func GenerateFileName(dir, ext string) string {
	ext = strings.ToLower(ext)
	if !validExt(ext) {
		ext = ""
	}
	return path.Join(dir, uuid.NewString()+ext)
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
