package ec2

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net"
	"sort"
	"strings"
)

// Request is the canonical form of a signed request as delivered by the
// transport layer: the access key naming the credential, the caller-supplied
// signature, and the fields the signature covers.
type Request struct {
	Access    string            `json:"access"`
	Signature string            `json:"signature"`
	Verb      string            `json:"verb"`
	Host      string            `json:"host"`
	Path      string            `json:"path"`
	Params    map[string]string `json:"params,omitempty"`
}

// Sign computes the HMAC-SHA256 signature of the request's canonical string
// under secret. Deterministic: parameters are ordered before signing.
func Sign(secret string, req Request) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalString(req)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the caller-supplied signature against secret, byte for byte.
// Some client libraries sign without the port, so when the first comparison
// fails and the request host carries a port, one more attempt is made with
// the port stripped. Both failing means the request is not authentic.
func Verify(secret string, req Request) bool {
	if req.Signature == "" {
		return false
	}
	if signatureMatches(secret, req) {
		return true
	}
	if host, _, err := net.SplitHostPort(req.Host); err == nil {
		stripped := req
		stripped.Host = host
		return signatureMatches(secret, stripped)
	}
	return false
}

func signatureMatches(secret string, req Request) bool {
	expected := Sign(secret, req)
	return hmac.Equal([]byte(expected), []byte(req.Signature))
}

func canonicalString(req Request) string {
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+req.Params[k])
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(req.Verb))
	b.WriteByte('\n')
	b.WriteString(strings.ToLower(req.Host))
	b.WriteByte('\n')
	b.WriteString(req.Path)
	b.WriteByte('\n')
	b.WriteString(strings.Join(pairs, "&"))
	return b.String()
}
