package ec2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest(secret string) Request {
	req := Request{
		Access: "AKIA-test",
		Verb:   "GET",
		Host:   "compute.example.com:8773",
		Path:   "/services/Cloud",
		Params: map[string]string{
			"Action":  "DescribeInstances",
			"Version": "2010-08-31",
		},
	}
	req.Signature = Sign(secret, req)
	return req
}

func TestVerifyCorrectSignature(t *testing.T) {
	req := sampleRequest("s3cret")
	assert.True(t, Verify("s3cret", req))
}

func TestVerifyRejectsAlteredField(t *testing.T) {
	req := sampleRequest("s3cret")
	req.Params["Action"] = "TerminateInstances"
	assert.False(t, Verify("s3cret", req))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	req := sampleRequest("s3cret")
	assert.False(t, Verify("other", req))
}

func TestVerifyRetriesWithoutPort(t *testing.T) {
	// Client signed without the port but sent the host with one.
	signedWithoutPort := Request{
		Verb:   "GET",
		Host:   "compute.example.com",
		Path:   "/services/Cloud",
		Params: map[string]string{"Action": "DescribeInstances"},
	}
	req := signedWithoutPort
	req.Host = "compute.example.com:8773"
	req.Signature = Sign("s3cret", signedWithoutPort)

	assert.True(t, Verify("s3cret", req), "second pass with port stripped must succeed")
}

func TestVerifyPortRetryStillChecksSecret(t *testing.T) {
	signedWithoutPort := Request{
		Verb: "GET",
		Host: "compute.example.com",
		Path: "/",
	}
	req := signedWithoutPort
	req.Host = "compute.example.com:8773"
	req.Signature = Sign("wrong-secret", signedWithoutPort)

	assert.False(t, Verify("s3cret", req), "retry must never turn into a silent pass")
}

func TestVerifyEmptySignature(t *testing.T) {
	req := sampleRequest("s3cret")
	req.Signature = ""
	assert.False(t, Verify("s3cret", req))
}

func TestCanonicalStringOrdersParams(t *testing.T) {
	a := Request{Verb: "get", Host: "H.example.com", Path: "/", Params: map[string]string{"b": "2", "a": "1"}}
	b := Request{Verb: "GET", Host: "h.example.com", Path: "/", Params: map[string]string{"a": "1", "b": "2"}}
	require.Equal(t, Sign("k", a), Sign("k", b), "signing must be order- and case-normalized")
}
