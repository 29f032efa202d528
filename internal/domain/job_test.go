package domain

import "testing"

func TestJobID_StringParseRoundTrip(t *testing.T) {
	id := NewJobID()
	parsed, err := ParseJobID(id.String())
	if err != nil {
		t.Fatalf("ParseJobID: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: got %v, want %v", parsed, id)
	}
}

func TestJobID_MarshalUnmarshalText(t *testing.T) {
	id := NewJobID()
	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got JobID
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != id {
		t.Fatalf("text round trip mismatch: got %v, want %v", got, id)
	}
}

func TestParseJobID_RejectsMalformed(t *testing.T) {
	if _, err := ParseJobID("not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed UUID")
	}
}

func TestStatus_String(t *testing.T) {
	cases := map[Status]string{
		StatusPending:    "Pending",
		StatusInProgress: "InProgress",
		StatusDone:       "Done",
		Status(99):       "Unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestArtifactKind_String(t *testing.T) {
	cases := map[ArtifactKind]string{
		ArtifactContract: "Contract",
		ArtifactDbg:      "Dbg",
		ArtifactUnknown:  "Unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("ArtifactKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestErrorType_HTTPStatus(t *testing.T) {
	if ErrInternalError.HTTPStatus() != 500 {
		t.Fatalf("InternalError should map to 500")
	}
	for _, e := range []ErrorType{
		ErrUnsupportedCompilerVersion,
		ErrCompilationError,
		ErrNothingToCompile,
		ErrUnknownNetworkError,
		ErrVerificationError,
	} {
		if e.HTTPStatus() != 400 {
			t.Errorf("%s should map to 400, got %d", e, e.HTTPStatus())
		}
	}
}

func TestTaskResult_Constructors(t *testing.T) {
	compileOK := NewCompileSuccess([]ArtifactInfo{{Kind: ArtifactContract, Path: "A.json"}})
	if !compileOK.IsSuccess() || compileOK.Success != SuccessCompile {
		t.Fatalf("NewCompileSuccess did not produce a compile success")
	}

	verifyOK := NewVerifySuccess("verified")
	if !verifyOK.IsSuccess() || verifyOK.Success != SuccessVerify {
		t.Fatalf("NewVerifySuccess did not produce a verify success")
	}

	failure := NewFailure(ErrCompilationError, "boom")
	if failure.IsSuccess() {
		t.Fatalf("NewFailure produced a success result")
	}
	if failure.FailureMessage != "boom" {
		t.Fatalf("failure message not preserved")
	}

	fallback := NewFailure("", "boom")
	if fallback.Kind != ErrInternalError {
		t.Fatalf("NewFailure with empty kind should default to ErrInternalError, got %s", fallback.Kind)
	}
}
