package rights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CheckRequest is the payload sent to the coverage-verification service.
type CheckRequest struct {
	PatientID      uuid.UUID `json:"patient_id"`
	ClinicID       uuid.UUID `json:"clinic_id"`
	ConsultationID uuid.UUID `json:"consultation_id"`
}

// CheckResult is the insurer's coverage split. Amounts are in minor units.
type CheckResult struct {
	InsurerAmount int64  `json:"insurer_amount"`
	PatientAmount int64  `json:"patient_amount"`
	InsurerID     string `json:"insurer_id"`
}

// Client verifies a patient's coverage with the external insurer service.
type Client interface {
	Check(ctx context.Context, req CheckRequest) (*CheckResult, error)
}

type httpClient struct {
	url string
	hc  *http.Client
}

// NewHTTPClient returns a Client backed by the insurer's HTTP endpoint. The
// timeout bounds the whole call; a slow insurer surfaces as a failed check,
// never as a hung request.
func NewHTTPClient(url string, timeout time.Duration) Client {
	return &httpClient{
		url: url,
		hc:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode rights check request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rights check request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call rights check service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rights check service returned %d", resp.StatusCode)
	}

	var result CheckResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode rights check response: %w", err)
	}
	return &result, nil
}
