package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streetlight_monitor/internal/ingest"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/switchtime"
)

// EntityQuery selects attributes of one entity over [From, To].
type EntityQuery struct {
	Service    model.Service
	Entity     string
	Attributes []string
	From       time.Time
	To         time.Time
	// Aggregate requests provider-side averaging over Interval seconds.
	Aggregate bool
	Interval  int
}

func (q EntityQuery) params(from time.Time) url.Values {
	params := url.Values{}
	params.Set("attrs", lowerAll(q.Attributes))
	params.Set("fromDate", formatTimestamp(from))
	params.Set("toDate", formatTimestamp(q.To))
	if q.Aggregate {
		params.Set("aggrMethod", "avg")
		params.Set("aggrPeriod", aggrPeriod(q.Interval))
	}
	return params
}

// EntityPages fetches every page of the query from the entities endpoint.
// A full page continues one second after its last timestamp.
func (c *Client) EntityPages(ctx context.Context, q EntityQuery) []ingest.EntitiesPage {
	var pages []ingest.EntitiesPage
	from := q.From
	for from.Before(q.To) {
		params := q.params(from)
		params.Set("limit", strconv.Itoa(c.pageSize))
		address := c.address([]string{"entities", q.Entity}, params)

		body, err := c.get(ctx, q.Service, address)
		if err != nil {
			c.degrade(err, q.Service, q.Entity, address)
			break
		}
		if body == nil {
			break
		}
		page, err := ingest.DecodeEntitiesPage(body)
		if err != nil {
			c.degrade(err, q.Service, q.Entity, address)
			break
		}
		if len(page.Index) == 0 {
			break
		}
		pages = append(pages, page)
		if len(page.Index) < c.pageSize {
			break
		}

		last, err := c.cache.Parse(page.Index[len(page.Index)-1])
		if err != nil {
			c.degrade(err, q.Service, q.Entity, address)
			break
		}
		from = last.Add(time.Second)
	}
	return pages
}

// Entity returns the samples of the query in time order.
func (c *Client) Entity(ctx context.Context, q EntityQuery) []model.Sample {
	pages := c.EntityPages(ctx, q)
	samples := ingest.ParseEntities(pages, c.cache)
	c.log.Debug().
		Str("entity", q.Entity).
		Int("pages", len(pages)).
		Int("samples", len(samples)).
		Msg("fetched entity")
	return samples
}

// TypeQuery selects attributes of all (or the listed) entities of a type.
type TypeQuery struct {
	Service    model.Service
	EntityType string
	Entities   []string
	Attributes []string
	From       time.Time
	To         time.Time
	Aggregate  bool
	Interval   int
}

// Types fetches each attribute from the types endpoint with offset
// pagination and returns time-ordered samples per entity.
func (c *Client) Types(ctx context.Context, q TypeQuery) map[string][]model.Sample {
	values := ingest.TypeValues{}
	for _, attr := range q.Attributes {
		offset := 0
		for {
			params := url.Values{}
			params.Set("fromDate", formatTimestamp(q.From))
			params.Set("toDate", formatTimestamp(q.To))
			params.Set("limit", strconv.Itoa(c.pageSize))
			params.Set("offset", strconv.Itoa(offset))
			if len(q.Entities) > 0 {
				params.Set("id", strings.Join(q.Entities, ","))
			}
			if q.Aggregate {
				params.Set("aggrMethod", "avg")
				params.Set("aggrPeriod", aggrPeriod(q.Interval))
			}
			address := c.address([]string{"types", q.EntityType, "attrs", attr}, params)

			body, err := c.get(ctx, q.Service, address)
			if err != nil {
				c.degrade(err, q.Service, q.EntityType, address)
				break
			}
			if body == nil {
				break
			}
			page, err := ingest.DecodeTypesPage(body)
			if err != nil {
				c.degrade(err, q.Service, q.EntityType, address)
				break
			}
			if page.AttrName != attr || page.EntityType != q.EntityType {
				break
			}
			count := values.Merge(page)
			if count < c.pageSize {
				break
			}
			offset += count
		}
	}
	return values.Samples(c.cache)
}

// Illuminance returns minute-averaged readings of an area illuminance
// sensor over the given range, in time order.
func (c *Client) Illuminance(ctx context.Context, service model.Service, device string, day model.TimeRange) []switchtime.Reading {
	samples := c.Entity(ctx, EntityQuery{
		Service:    service,
		Entity:     device,
		Attributes: []string{model.AttrIlluminance},
		From:       day.Start,
		To:         day.End.Add(-time.Millisecond),
		Aggregate:  true,
		Interval:   60,
	})

	readings := make([]switchtime.Reading, 0, len(samples))
	for _, s := range samples {
		if x, ok := s.Values.Lookup(model.AttrIlluminance); ok {
			readings = append(readings, switchtime.Reading{Time: s.Time, Value: x})
		}
	}
	return readings
}
