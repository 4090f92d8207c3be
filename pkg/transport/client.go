// Package transport talks to the backend: one-shot HTTP fetches for zones,
// the planning graph and state, plus the long-lived live channel.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/sources"
	"github.com/sudorandom/ropt-live/pkg/utils"
)

// StaleError accompanies data served from the response cache after the
// backend could not be reached.
type StaleError struct {
	URL      string
	StoredAt time.Time
	Err      error
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("serving cached %s from %s: %v", e.URL, e.StoredAt.Format(time.RFC3339), e.Err)
}

func (e *StaleError) Unwrap() error { return e.Err }

type Client struct {
	Base string
	HTTP *http.Client
	// Cache is optional. When set, zones and graph responses are stored and
	// replayed if the backend is unreachable.
	Cache *utils.ResponseCache
	// ZonesFile, when set, replaces GET /zones with a local GeoJSON file.
	ZonesFile string
}

func NewClient(base string, cache *utils.ResponseCache) *Client {
	return &Client{
		Base:  base,
		HTTP:  &http.Client{Timeout: 10 * time.Second},
		Cache: cache,
	}
}

// LoadZones fetches the zone layout. A *StaleError is returned together with
// cached zones when the network fetch failed.
func (c *Client) LoadZones(ctx context.Context) ([]model.Zone, error) {
	if c.ZonesFile != "" {
		return sources.LoadZonesGeoJSON(c.ZonesFile)
	}
	body, fetchErr := c.getCached(ctx, sources.ZonesPath)
	if body == nil {
		return nil, fetchErr
	}
	var payload model.ZonesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode zones: %w", err)
	}
	return payload.Zones, fetchErr
}

// LoadGraph fetches the planning graph and indexes its nodes by id.
func (c *Client) LoadGraph(ctx context.Context) (model.NodeIndex, error) {
	body, fetchErr := c.getCached(ctx, sources.GraphPath)
	if body == nil {
		return nil, fetchErr
	}
	var payload model.GraphPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return model.NewNodeIndex(payload.Graph.Nodes), fetchErr
}

// FetchSnapshot polls GET /state. Snapshots are never cached.
func (c *Client) FetchSnapshot(ctx context.Context) (*model.Snapshot, error) {
	body, err := utils.GetBody(ctx, c.HTTP, sources.Endpoint(c.Base, sources.StatePath))
	if err != nil {
		return nil, fmt.Errorf("fetch state: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &snap, nil
}

func (c *Client) getCached(ctx context.Context, path string) ([]byte, error) {
	url := sources.Endpoint(c.Base, path)
	body, err := utils.GetBody(ctx, c.HTTP, url)
	if err == nil {
		if c.Cache != nil {
			if cerr := c.Cache.Put(url, body); cerr != nil {
				log.Printf("[cache] Failed to store %s: %v", url, cerr)
			}
		}
		return body, nil
	}
	err = fmt.Errorf("fetch %s: %w", path, err)
	if c.Cache == nil || errors.Is(err, context.Canceled) {
		return nil, err
	}
	cached, cerr := c.Cache.Get(url)
	if cerr != nil {
		log.Printf("[cache] Failed to read %s: %v", url, cerr)
		return nil, err
	}
	if cached == nil {
		return nil, err
	}
	return cached.Body, &StaleError{URL: url, StoredAt: cached.StoredAt, Err: err}
}
