// Package satclient is the satellite-biomass subscription external client
// (§4.1). Grounded on
// original_source/data-processor/src/integrations/planet_client.py for the
// create/status/results/fetch_delivery/cancel lifecycle shape; built on
// internal/httpretry for the common timeout/retry/rate-limit contract.
package satclient

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/httpretry"
	"github.com/harvestguard/ingestcore/internal/ratelimit"
)

// Client is the satellite-provider upstream client.
type Client struct {
	baseURL string
	token   string
	runner  *httpretry.Client
}

func New(baseURL, token string, httpClient httpretry.Doer, limiter *ratelimit.ClientLimiter, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		runner:  httpretry.New("satellite", httpClient, limiter, logger),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Permanent, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type createRequestWire struct {
	Geometry   [][2]float64 `json:"geometry"`
	Start      string       `json:"start"`
	End        string       `json:"end"`
	ProductTag string       `json:"product_tag"`
}

type createResponseWire struct {
	SubscriptionID string `json:"subscription_id"`
}

// Create implements §4.1 create: submits a geometry + window + product tag,
// returns the upstream subscription id.
func (c *Client) Create(ctx context.Context, geometry domain.GeoPolygon, start, end time.Time, productTag string) (string, error) {
	payload, err := json.Marshal(createRequestWire{
		Geometry:   geometry.Vertices,
		Start:      start.UTC().Format(time.RFC3339),
		End:        end.UTC().Format(time.RFC3339),
		ProductTag: productTag,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Permanent, "encode create request", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/subscriptions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	body, _, err := c.runner.Do(ctx, req)
	if err != nil {
		return "", err
	}
	var wire createResponseWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return "", apperr.Wrap(apperr.Permanent, "decode create response", err)
	}
	return wire.SubscriptionID, nil
}

type statusWire struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Status implements §4.1 status: the upstream provider's own lifecycle
// state, translated by the caller via internal/satellite's FSM.
func (c *Client) Status(ctx context.Context, subscriptionID string) (string, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return "", "", err
	}
	body, _, err := c.runner.Do(ctx, req)
	if err != nil {
		return "", "", err
	}
	var wire statusWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return "", "", apperr.Wrap(apperr.Permanent, "decode status response", err)
	}
	return wire.Status, wire.Reason, nil
}

type resultsWire struct {
	Deliveries []struct {
		DeliveryID      string  `json:"delivery_id"`
		ObservationDate string  `json:"observation_date"`
		CloudCover      float64 `json:"cloud_cover"`
	} `json:"deliveries"`
}

// Delivery is one pending/fetched observation announced by results.
type Delivery struct {
	DeliveryID      string
	ObservationDate time.Time
	CloudCover      float64
}

// Results implements §4.1 results: list of deliveries available since the
// last poll.
func (c *Client) Results(ctx context.Context, subscriptionID string) ([]Delivery, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/subscriptions/"+subscriptionID+"/results", nil)
	if err != nil {
		return nil, err
	}
	body, _, err := c.runner.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var wire resultsWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperr.Wrap(apperr.Permanent, "decode results response", err)
	}
	out := make([]Delivery, 0, len(wire.Deliveries))
	for _, d := range wire.Deliveries {
		observed, err := time.Parse(time.RFC3339, d.ObservationDate)
		if err != nil {
			observed, err = time.Parse("2006-01-02", d.ObservationDate)
			if err != nil {
				return nil, apperr.Wrap(apperr.Permanent, "parse observation_date", err)
			}
		}
		out = append(out, Delivery{DeliveryID: d.DeliveryID, ObservationDate: observed, CloudCover: d.CloudCover})
	}
	return out, nil
}

// FetchDelivery implements §4.1 fetch_delivery: downloads and parses the
// CSV payload for one delivery into biomass samples for a plot.
func (c *Client) FetchDelivery(ctx context.Context, subscriptionID, deliveryID, plotID string) ([]domain.BiomassSample, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/subscriptions/"+subscriptionID+"/deliveries/"+deliveryID, nil)
	if err != nil {
		return nil, err
	}
	body, _, err := c.runner.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseDeliveryCSV(plotID, subscriptionID, body)
}

func parseDeliveryCSV(plotID, subscriptionID string, raw []byte) ([]domain.BiomassSample, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(apperr.Permanent, "parse delivery csv", err)
	}
	if len(rows) < 2 {
		return nil, apperr.New(apperr.InsufficientData, "delivery csv has no data rows")
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	samples := make([]domain.BiomassSample, 0, len(rows)-1)
	for _, row := range rows[1:] {
		observed, err := time.Parse("2006-01-02", row[col["observation_date"]])
		if err != nil {
			return nil, apperr.Wrap(apperr.Permanent, "parse observation_date", err)
		}
		proxy, err := strconv.ParseFloat(row[col["biomass_proxy"]], 64)
		if err != nil {
			return nil, apperr.Wrap(apperr.Permanent, "parse biomass_proxy", err)
		}
		cloud, err := strconv.ParseFloat(row[col["cloud_cover"]], 64)
		if err != nil {
			return nil, apperr.Wrap(apperr.Permanent, "parse cloud_cover", err)
		}
		samples = append(samples, domain.BiomassSample{
			PlotID:          plotID,
			SubscriptionID:  subscriptionID,
			ObservationDate: observed,
			BiomassProxy:    proxy,
			CloudCover:      cloud,
			Quality:         domain.DeriveBiomassQuality(cloud),
		})
	}
	return samples, nil
}

// Cancel implements §4.1 cancel.
func (c *Client) Cancel(ctx context.Context, subscriptionID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/subscriptions/"+subscriptionID+"/cancel", nil)
	if err != nil {
		return err
	}
	_, _, err = c.runner.Do(ctx, req)
	return err
}
