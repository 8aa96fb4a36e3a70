// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package githubauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix is the algorithm prefix GitHub sends in the
// X-Hub-Signature-256 header.
const signaturePrefix = "sha256="

// VerifyWebhookSignature reports whether signature is a valid
// HMAC-SHA256 of payload under the shared webhook secret. Malformed
// input fails closed: the function returns false and never errors.
func (a *Authenticator) VerifyWebhookSignature(payload []byte, signature string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)

	return hmac.Equal(got, mac.Sum(nil))
}
