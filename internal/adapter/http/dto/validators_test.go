package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := CreateTransactionRequest{
		AccountID:      "  9c1f1c1a-0000-0000-0000-000000000001  ",
		Type:           " deposit ",
		Currency:       " USD ",
		IdempotencyKey: " dep-001 ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "9c1f1c1a-0000-0000-0000-000000000001", req.AccountID)
	assert.Equal(t, "deposit", req.Type)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, "dep-001", req.IdempotencyKey)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := TransitionRequest{
		To:          "failed",
		ProviderRef: "ref <script>alert('x')</script>",
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.ProviderRef, "&lt;script&gt;")
	assert.NotContains(t, req.ProviderRef, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	reason := "  export feed timed out  "
	resp := ReconRunResponse{
		Status: "failed",
		Reason: &reason,
	}
	SanitizeStruct(&resp)

	assert.Equal(t, "export feed timed out", *resp.Reason)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	resp := ReconRunResponse{Status: "completed", Reason: nil}
	SanitizeStruct(&resp)
	assert.Nil(t, resp.Reason)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"dep-001",
		"WD_002",
		"a.b.c",
		"simple123",
		"ABC-def_GHI.123",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"dep 001",     // space
		"dep<001>",    // angle brackets
		"dep;DROP",    // semicolon
		"",            // empty
		"hello world", // space
		"dep\n001",    // newline
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}
