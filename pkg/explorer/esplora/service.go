package esplora

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-btc-wallet/pkg/circuitbreaker"
	"github.com/tdex-network/tdex-btc-wallet/pkg/explorer"
	"go.uber.org/ratelimit"
)

const (
	// DefaultRequestsPerSecond is the rate limit applied when none is given
	DefaultRequestsPerSecond = 10
	// DefaultMaxConcurrentRequests is the number of addresses queried in
	// parallel by GetTransactionsForAddresses
	DefaultMaxConcurrentRequests = 4

	requestTimeout = 30 * time.Second
)

type esplora struct {
	apiURL         string
	client         *http.Client
	limiter        ratelimit.Limiter
	cb             *gobreaker.CircuitBreaker
	maxConcurrency int
}

// NewService returns a new esplora service as an explorer.Service interface.
// Requests are throttled to the given rate and go through a circuit breaker
// so that a failing endpoint is not hammered.
func NewService(apiURL string, requestsPerSecond int) (explorer.Service, error) {
	if len(apiURL) <= 0 {
		return nil, fmt.Errorf("missing explorer url")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}

	service := &esplora{
		apiURL:         strings.TrimSuffix(apiURL, "/"),
		client:         &http.Client{Timeout: requestTimeout},
		limiter:        ratelimit.New(requestsPerSecond),
		cb:             circuitbreaker.NewCircuitBreaker("esplora"),
		maxConcurrency: DefaultMaxConcurrentRequests,
	}

	if err := service.healthCheck(); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	return service, nil
}

func (e *esplora) healthCheck() error {
	_, err := e.GetBlockHeight(context.Background())
	return err
}

type httpResponse struct {
	status int
	body   string
}

// request performs the http call through the rate limiter and the circuit
// breaker. Only transport errors and 5xx responses count as breaker
// failures, any other non-200 status is returned as error with the response
// body as message.
func (e *esplora) request(
	ctx context.Context, method, path, body string, headers map[string]string,
) (string, error) {
	e.limiter.Take()

	res, err := e.cb.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if len(body) > 0 {
			reqBody = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(
			ctx, method, e.apiURL+path, reqBody,
		)
		if err != nil {
			return nil, err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf(
				"%s %s: %d %s", method, path, resp.StatusCode, respBody,
			)
		}
		return &httpResponse{resp.StatusCode, string(respBody)}, nil
	})
	if err != nil {
		return "", err
	}

	resp := res.(*httpResponse)
	if resp.status != http.StatusOK {
		return "", fmt.Errorf("%s %s: %s", method, path, resp.body)
	}
	return resp.body, nil
}
