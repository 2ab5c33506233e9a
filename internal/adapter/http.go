package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxPayloadBytes caps a single response body. Larger bodies are rejected
// rather than stored truncated.
var maxPayloadBytes int64 = 32 << 20

// browserHeaders returns the header set shared by portals that expect a
// browser client.
func browserHeaders(userAgent, referer string) http.Header {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Referer", referer)
	return h
}

// doGET performs one GET and reads the whole body. Non-2xx responses are
// returned as *model.HTTPError.
func doGET(ctx context.Context, client *http.Client, portal, url string, h http.Header) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%s fetch: %w", portal, err)
	}
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%s fetch: %w", portal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return FetchResult{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s fetch: unexpected status %d", portal, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return FetchResult{}, fmt.Errorf("%s fetch: reading body: %w", portal, err)
	}
	if int64(len(body)) > maxPayloadBytes {
		return FetchResult{}, fmt.Errorf("%s fetch: response body exceeds %d bytes", portal, maxPayloadBytes)
	}
	return FetchResult{URL: url, StatusCode: resp.StatusCode, Body: body}, nil
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
