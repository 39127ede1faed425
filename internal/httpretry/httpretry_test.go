package httpretry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedDoer struct {
	responses []*http.Response
	calls     int
}

func (s *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func newResp(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{newResp(200, `{"ok":true}`)}}
	c := New("test", doer, nil, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://example.test", nil)
	body, status, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Contains(t, string(body), "ok")
	assert.Equal(t, 1, doer.calls)
}

func TestDoRetriesOn5xxThenSucceeds(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{
		newResp(503, "unavailable"),
		newResp(200, `{"ok":true}`),
	}}
	c := New("test", doer, nil, nil)
	c.maxAttempts = 3

	req, _ := http.NewRequest(http.MethodGet, "http://example.test", nil)
	_, status, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, 2, doer.calls)
}

func TestDoDoesNotRetryOn4xx(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{newResp(404, "not found")}}
	c := New("test", doer, nil, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://example.test", nil)
	_, _, err := c.Do(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 1, doer.calls)
}

func TestParseRetryAfterHeaderSeconds(t *testing.T) {
	d := parseRetryAfterHeader("2")
	assert.Equal(t, int64(2), d.Nanoseconds()/1e9)
}

func TestParseRetryAfterHeaderEmpty(t *testing.T) {
	assert.Equal(t, int64(0), parseRetryAfterHeader("").Nanoseconds())
}
