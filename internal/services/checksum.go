package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
)

// ChecksumOperations hashes the ordered operation list. Marshaling is
// canonical: struct fields emit in declaration order and encoding/json sorts
// map keys, so equal proposals always hash equal.
func ChecksumOperations(ops []types.Operation) (string, error) {
	raw, err := json.Marshal(ops)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum guards against a proposal whose stored operations drifted
// from the checksum stamped at drafting time.
func VerifyChecksum(ops []types.Operation, checksum string) bool {
	got, err := ChecksumOperations(ops)
	if err != nil {
		return false
	}
	return strings.EqualFold(got, strings.TrimSpace(checksum))
}
