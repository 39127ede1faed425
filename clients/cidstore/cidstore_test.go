package cidstore

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDoer struct {
	status int
	body   string
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     http.Header{},
	}, nil
}

func TestPutJSONReturnsCID(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"cid":"sha256:abc"}`}
	c := New("http://upstream", "tok", doer, nil, nil)

	cid, err := c.PutJSON(context.Background(), map[string]string{"a": "b"}, map[string]string{"plot_id": "p1"})
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", cid)
}

func TestGetJSONDecodesIntoOut(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"a":"b"}`}
	c := New("http://upstream", "tok", doer, nil, nil)

	var out map[string]string
	err := c.GetJSON(context.Background(), "sha256:abc", &out)
	require.NoError(t, err)
	assert.Equal(t, "b", out["a"])
}

func TestURLForIsDeterministic(t *testing.T) {
	c := New("http://upstream", "tok", &fakeDoer{}, nil, nil)
	assert.Equal(t, "http://upstream/objects/sha256:abc", c.URLFor("sha256:abc"))
}

func TestPinAndUnpin(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{}`}
	c := New("http://upstream", "tok", doer, nil, nil)

	require.NoError(t, c.Pin(context.Background(), "sha256:abc"))
	require.NoError(t, c.Unpin(context.Background(), "sha256:abc"))
}
