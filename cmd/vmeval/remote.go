package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	apihttp "github.com/GriffinCanCode/scriptvm/internal/api/http"
	"github.com/GriffinCanCode/scriptvm/internal/evaluator"
)

// remoteClient sends evaluations to a running scriptvm server
type remoteClient struct {
	resty *resty.Client
}

func newRemoteClient(baseURL string, retries int, timeout time.Duration) *remoteClient {
	// Pooled transport from retryablehttp; resty drives the retries.
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "vmeval/"+apihttp.Version).
		SetTransport(retryClient.HTTPClient.Transport).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			switch r.StatusCode() {
			case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			}
			return false
		})

	return &remoteClient{resty: client}
}

// remoteError is a non-2xx reply from the server
type remoteError struct {
	Status int
	Body   apihttp.ErrorResponse
}

func (e *remoteError) Error() string {
	msg := e.Body.Error
	if e.Body.Message != "" {
		msg = fmt.Sprintf("%s: %s: %s", msg, e.Body.Name, e.Body.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

func toRemote(req *evaluator.Request) apihttp.EvaluateRequest {
	return apihttp.EvaluateRequest{
		Code:           req.Code,
		Globals:        req.Globals,
		Deps:           req.Deps,
		AdditionalDeps: req.AdditionalDeps,
		TimeoutMS:      int(req.Timeout.Milliseconds()),
		ModifyEnv:      req.ModifyEnv,
	}
}

// evaluate posts to /evaluate, or /render when render is set
func (c *remoteClient) evaluate(ctx context.Context, req *evaluator.Request, render bool) (*output, error) {
	var (
		evalResp   apihttp.EvaluateResponse
		renderResp apihttp.RenderResponse
		errResp    apihttp.ErrorResponse
	)

	r := c.resty.R().
		SetContext(ctx).
		SetBody(toRemote(req)).
		SetError(&errResp)
	path := "/evaluate"
	if render {
		path = "/render"
		r.SetResult(&renderResp)
	} else {
		r.SetResult(&evalResp)
	}

	resp, err := r.Post(path)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	if resp.IsError() {
		return nil, &remoteError{Status: resp.StatusCode(), Body: errResp}
	}

	if render {
		return &output{ID: renderResp.ID, HTML: renderResp.HTML, Text: renderResp.Text}, nil
	}
	return &output{
		ID:         evalResp.ID,
		Value:      evalResp.Value,
		Console:    evalResp.Console,
		Warnings:   evalResp.Warnings,
		DurationMS: evalResp.DurationMS,
		Backend:    evalResp.Backend,
	}, nil
}
