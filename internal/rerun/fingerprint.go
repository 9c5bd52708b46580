package rerun

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"slices"
)

// Fingerprint hashes the names and contents of files, plus any extra
// inputs such as a configuration digest. The order of files does not
// matter.
func Fingerprint(files []string, extra ...[]byte) (string, error) {
	files = slices.Clone(files)
	slices.Sort(files)

	h := sha256.New()
	for _, path := range files {
		sum, err := fileHash(path)
		if err != nil {
			return "", err
		}
		io.WriteString(h, path)
		h.Write([]byte{0})
		h.Write(sum)
	}
	for _, b := range extra {
		h.Write(b)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func fileHash(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return nil, err
	}
	return hash.Sum(nil), nil
}
