package mediastore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// HashAlgorithm names the digest used for content hashes.
const HashAlgorithm = "SHA256"

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader streams r through the same digest as Hash and returns the
// digest with the number of bytes read.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
