// Package overpass queries an Overpass API server for OSM areas that
// matter to drone pilots: aerodromes, military land, protected areas and
// other sensitive sites.
package overpass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_URL = "https://overpass-api.de/api/interpreter"

	// an identical bbox is padded by up to this much on a duplicate_query reply
	MAX_FUZZ_METERS = 500
)

// (tag, value) pairs searched for; an empty value matches any value
var zoneTags = [][2]string{
	{"aeroway", "aerodrome"},
	{"aeroway", "heliport"},
	{"landuse", "military"},
	{"military", ""},
	{"boundary", "protected_area"},
	{"leisure", "nature_reserve"},
	{"amenity", "prison"},
	{"power", "plant"},
}

type Client struct {
	logger     *logrus.Logger
	apiUrl     string
	maxRetries int
	httpClient *http.Client
}

func (cli *Client) doSingleQuery(ctx context.Context, query string) (*osm.OSM, error) {
	form := url.Values{"data": {query}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cli.apiUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := cli.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if err := errorFromBody(respBytes); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("received status code %d: body: %s", resp.StatusCode, string(respBytes))
	}

	var osmData osm.OSM

	if err := json.Unmarshal(respBytes, &osmData); err != nil {
		if bodyErr := errorFromBody(respBytes); bodyErr != nil {
			return nil, bodyErr
		}
		return nil, fmt.Errorf("couldn't parse overpass reply: %w", err)
	}

	return &osmData, nil
}

func (cli *Client) wait(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// GetZoneAreas returns the ways and relations inside 'bound' carrying one
// of the zone tags, with the nodes needed to build their geometry.
func (cli *Client) GetZoneAreas(ctx context.Context, bound orb.Bound) (*osm.OSM, error) {
	query := BuildZoneQuery(bound)
	tries := 0

	for {
		osmData, err := cli.doSingleQuery(ctx, query)
		if err == nil {
			return osmData, nil
		}

		if tries >= cli.maxRetries || !(errors.Is(err, ErrTimeout) || errors.Is(err, ErrDupeQuery)) {
			return nil, err
		}
		tries++

		if errors.Is(err, ErrDupeQuery) {
			bound = geo.BoundPad(bound, float64(1+rand.Intn(MAX_FUZZ_METERS)))
			query = BuildZoneQuery(bound)
			cli.logger.Warnf("Overpass: duplicate query, retrying with a padded bbox (try %d)", tries)
			continue
		}

		cli.logger.Warnf("Overpass: query timed out, retrying in %d second(s) (try %d)", tries, tries)
		if err := cli.wait(ctx, time.Duration(tries)*time.Second); err != nil {
			return nil, err
		}
	}
}

// BuildZoneQuery renders the Overpass QL for 'bound'. Overpass wants the
// bbox as south,west,north,east.
func BuildZoneQuery(bound orb.Bound) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[out:json][timeout:180][bbox:%f,%f,%f,%f];\n(\n",
		bound.Min.Lat(), bound.Min.Lon(), bound.Max.Lat(), bound.Max.Lon(),
	)

	for _, kind := range []string{"way", "rel"} {
		for _, tag := range zoneTags {
			if tag[1] == "" {
				fmt.Fprintf(&sb, "  %s[%q];\n", kind, tag[0])
			} else {
				fmt.Fprintf(&sb, "  %s[%q=%q];\n", kind, tag[0], tag[1])
			}
		}
	}

	sb.WriteString(");\nout body;\n>;\nout skel qt;\n")
	return sb.String()
}

func NewClient(logger *logrus.Logger, config Config) (*Client, error) {
	if logger == nil {
		return nil, errors.New("no logger given")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := 3 * time.Minute
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	return &Client{
		logger:     logger,
		apiUrl:     config.Url,
		maxRetries: config.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}
