package satclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/domain"
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

func TestCreateReturnsSubscriptionID(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"subscription_id":"sub-1"}`}
	c := New("http://upstream", "tok", doer, nil, nil)

	geom := domain.GeoPolygon{Vertices: [][2]float64{{1, 1}, {1, 2}, {2, 2}, {1, 1}}}
	id, err := c.Create(context.Background(), geom, time.Now(), time.Now().AddDate(0, 6, 0), "biomass_proxy")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", id)
}

func TestStatusParsesResponse(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"status":"active","reason":""}`}
	c := New("http://upstream", "tok", doer, nil, nil)

	status, reason, err := c.Status(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "active", status)
	assert.Empty(t, reason)
}

func TestResultsParsesDeliveries(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"deliveries":[{"delivery_id":"d1","observation_date":"2026-01-15","cloud_cover":0.05}]}`}
	c := New("http://upstream", "tok", doer, nil, nil)

	deliveries, err := c.Results(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "d1", deliveries[0].DeliveryID)
}

func TestFetchDeliveryParsesCSV(t *testing.T) {
	csv := "observation_date,biomass_proxy,cloud_cover\n2026-01-15,0.62,0.04\n"
	doer := &fakeDoer{status: 200, body: csv}
	c := New("http://upstream", "tok", doer, nil, nil)

	samples, err := c.FetchDelivery(context.Background(), "sub-1", "d1", "plot-1")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "plot-1", samples[0].PlotID)
	assert.InDelta(t, 0.62, samples[0].BiomassProxy, 1e-9)
	assert.Equal(t, domain.BiomassQualityHigh, samples[0].Quality)
}

func TestFetchDeliveryFailsInsufficientDataOnEmptyCSV(t *testing.T) {
	doer := &fakeDoer{status: 200, body: "observation_date,biomass_proxy,cloud_cover\n"}
	c := New("http://upstream", "tok", doer, nil, nil)

	_, err := c.FetchDelivery(context.Background(), "sub-1", "d1", "plot-1")
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientData, apperr.KindOf(err))
}

func TestCancelSucceeds(t *testing.T) {
	doer := &fakeDoer{status: 204, body: ""}
	c := New("http://upstream", "tok", doer, nil, nil)

	err := c.Cancel(context.Background(), "sub-1")
	require.NoError(t, err)
}
