// Package industryfeed adapts the external standardized tracking-data
// provider to the source.Client interface: an HTTP client that decodes a
// JSON list of raw feed events and normalizes them into the canonical
// vocabulary.
package industryfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/domain/catalog"
	"github.com/aerocargo/shiptrack/internal/integrations/source"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/pkg/errors"
)

const sourceName = "industry_feed"

type Client struct {
	baseURL  string
	apiKey   string
	sourceID uint64
	httpc    *http.Client
}

func New(baseURL, apiKey string, sourceID uint64) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		sourceID: sourceID,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
}

type rawUpstreamEvent struct {
	Code            string    `json:"code"`
	Description     string    `json:"description"`
	EventTime       time.Time `json:"event_time"`
	TZ              string    `json:"tz"`
	LocationName    string    `json:"location_name"`
	LocationCountry string    `json:"location_country"`
	LocationCity    string    `json:"location_city"`
	AirportCode     string    `json:"airport_code"`
	ExternalID      string    `json:"external_id"`
	Reference       string    `json:"reference"`
}

type upstreamResponse struct {
	Events []rawUpstreamEvent `json:"events"`
}

func (c *Client) Fetch(ctx context.Context, target source.Target) ([]*models.Event, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, apperr.NewPermanentUpstream(sourceName, errors.Wrap(err, "parse base url"))
	}
	u.Path = fmt.Sprintf("/v1/shipments/%s/events", url.PathEscape(target.AWBNumber))
	q := u.Query()
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.NewPermanentUpstream(sourceName, errors.Wrap(err, "new request"))
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, apperr.NewTransientUpstream(sourceName, errors.Wrap(err, "do request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.NewTransientUpstream(sourceName, fmt.Errorf("rate limited (429)"))
	}
	if resp.StatusCode/100 == 5 {
		return nil, apperr.NewTransientUpstream(sourceName, fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode/100 != 2 {
		return nil, apperr.NewPermanentUpstream(sourceName, fmt.Errorf("http %d", resp.StatusCode))
	}

	var body upstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.NewPermanentUpstream(sourceName, errors.Wrap(err, "decode"))
	}

	events := make([]*models.Event, 0, len(body.Events))
	for _, re := range body.Events {
		if _, participates := catalog.StatusFor(re.Code); !participates && re.Description == "" {
			slog.Warn("industry feed: unknown code dropped", "code", re.Code, "awb", target.AWBNumber)
			continue
		}

		category := models.EventCategoryStatusUpdate
		if re.LocationName != "" && !catalog.MilestoneCodes[re.Code] {
			category = models.EventCategoryLocationUpdate
		}
		if catalog.MilestoneCodes[re.Code] {
			category = models.EventCategoryMilestone
		}
		if catalog.ExceptionCodes[re.Code] {
			category = models.EventCategoryException
		}

		severity := models.SeverityInfo
		if catalog.ExceptionCodes[re.Code] {
			severity = models.SeverityWarning
		}

		events = append(events, &models.Event{
			ShipmentID:  target.ShipmentID,
			Code:        re.Code,
			Description: re.Description,
			Category:    category,
			Location: models.Location{
				Name:        re.LocationName,
				Country:     re.LocationCountry,
				City:        re.LocationCity,
				AirportCode: re.AirportCode,
			},
			EventDatetime:   re.EventTime.UTC(),
			OriginalTZ:      re.TZ,
			IsMilestone:     catalog.MilestoneCodes[re.Code],
			IsException:     catalog.ExceptionCodes[re.Code],
			IsCritical:      catalog.ExceptionCodes[re.Code],
			Severity:        severity,
			SourceID:        c.sourceID,
			ExternalID:      re.ExternalID,
			Reference:       re.Reference,
			CustomerVisible: true,
		})
	}
	return events, nil
}
