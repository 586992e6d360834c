package errx_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Abraxas-365/tenantry/pkg/errx"
)

var testRegistry = errx.NewRegistry("TEST")

var (
	codeBroken  = testRegistry.Register("BROKEN", errx.TypeInternal, http.StatusInternalServerError, "broken")
	codeMissing = testRegistry.Register("MISSING", errx.TypeNotFound, http.StatusNotFound, "missing")
)

func TestRegistryPrefixesCodes(t *testing.T) {
	err := testRegistry.New(codeBroken)
	if err.Code != "TEST_BROKEN" {
		t.Fatalf("expected TEST_BROKEN, got %s", err.Code)
	}
	if err.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", err.HTTPStatus)
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	base := testRegistry.NewWithCause(codeMissing, errors.New("row gone"))
	wrapped := fmt.Errorf("lookup: %w", errx.Wrap(base, "outer", errx.TypeInternal))

	if !errx.IsCode(wrapped, codeMissing) {
		t.Fatal("expected wrapped error to match MISSING")
	}
	if errx.IsCode(wrapped, codeBroken) {
		t.Fatal("did not expect BROKEN to match")
	}
	if errx.IsCode(nil, codeMissing) {
		t.Fatal("nil never matches")
	}
}

func TestFieldErrorsBuildValidationError(t *testing.T) {
	fields := errx.FieldErrors{}
	if fields.Err("invalid") != nil {
		t.Fatal("empty field set must not produce an error")
	}

	fields.Add("plan_code", "unknown plan")
	fields.Add("plan_code", "ignored second message")
	fields.Add("coupon", "expired")

	err := fields.Err("invalid checkout")
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Type != errx.TypeValidation || err.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("unexpected type/status %s/%d", err.Type, err.HTTPStatus)
	}
	if err.Fields["plan_code"] != "unknown plan" {
		t.Fatalf("first message should win, got %q", err.Fields["plan_code"])
	}
	if got := fields.String(); got != "coupon: expired; plan_code: unknown plan" {
		t.Fatalf("unexpected string %q", got)
	}
}

func TestToResponseCarriesFieldsAndRequestID(t *testing.T) {
	err := errx.Validation("bad input").WithField("scope", "not allowed").WithDetail("client_id", "c1")
	resp := err.ToResponse("req-1")

	if resp.Success {
		t.Fatal("failed responses are never successful")
	}
	if resp.RequestID != "req-1" || resp.Fields["scope"] != "not allowed" || resp.Details["client_id"] != "c1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}
