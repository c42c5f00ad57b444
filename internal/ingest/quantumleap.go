package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
)

// AttributeSeries is one attribute column of an entities response.
type AttributeSeries struct {
	AttrName string                 `json:"attrName"`
	Values   []model.AttributeValue `json:"values"`
}

// EntitiesPage is one page of the provider's per-entity endpoint: a time
// index with parallel value arrays per attribute.
type EntitiesPage struct {
	EntityID   string            `json:"entityId"`
	Index      []string          `json:"index"`
	Attributes []AttributeSeries `json:"attributes"`
}

// TypeEntity is one entity's series in a per-type response.
type TypeEntity struct {
	EntityID string                 `json:"entityId"`
	Index    []string               `json:"index"`
	Values   []model.AttributeValue `json:"values"`
}

// TypesPage is one page of the provider's per-type endpoint for one attribute.
type TypesPage struct {
	AttrName   string       `json:"attrName"`
	EntityType string       `json:"entityType"`
	Entities   []TypeEntity `json:"entities"`
}

// unwrap returns the payload under a top-level "data" key, or body itself.
func unwrap(body []byte) []byte {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Data) > 0 {
		return wrapped.Data
	}
	return body
}

// DecodeEntitiesPage decodes an entities response body.
func DecodeEntitiesPage(body []byte) (EntitiesPage, error) {
	var page EntitiesPage
	if err := json.Unmarshal(unwrap(body), &page); err != nil {
		return EntitiesPage{}, fmt.Errorf("decoding entities page: %w", err)
	}
	return page, nil
}

// DecodeTypesPage decodes a types response body.
func DecodeTypesPage(body []byte) (TypesPage, error) {
	var page TypesPage
	if err := json.Unmarshal(unwrap(body), &page); err != nil {
		return TypesPage{}, fmt.Errorf("decoding types page: %w", err)
	}
	return page, nil
}

// ParseEntities turns entity pages into samples, one per index entry, in
// page order. Unparseable timestamps and invalid readings are skipped.
func ParseEntities(pages []EntitiesPage, cache *calendar.DateCache) []model.Sample {
	var samples []model.Sample
	for _, page := range pages {
		values := make([]model.Attributes, len(page.Index))
		for i := range values {
			values[i] = model.Attributes{}
		}
		for _, series := range page.Attributes {
			if series.AttrName == "" {
				continue
			}
			for i, v := range series.Values {
				if i >= len(values) {
					break
				}
				if clean, ok := model.Sanitize(series.AttrName, v); ok {
					values[i][series.AttrName] = clean
				}
			}
		}
		for i, ts := range page.Index {
			t, err := cache.Parse(ts)
			if err != nil {
				continue
			}
			samples = append(samples, model.Sample{Time: t, Values: values[i]})
		}
	}
	return samples
}

// EntitiesParser reads a single entities response body.
type EntitiesParser struct {
	Cache *calendar.DateCache
}

func (p *EntitiesParser) Parse(r io.Reader) ([]model.Sample, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading entities response: %w", err)
	}
	page, err := DecodeEntitiesPage(body)
	if err != nil {
		return nil, err
	}
	cache := p.Cache
	if cache == nil {
		cache = calendar.NewDateCache()
	}
	return ParseEntities([]EntitiesPage{page}, cache), nil
}

// TypeValues accumulates per-type pages as entity -> attribute -> timestamp -> value.
type TypeValues map[string]map[string]map[string]model.AttributeValue

// Merge adds the entities of page and returns how many index entries the
// page carried, nulls included, for offset pagination. Later pages
// overwrite equal timestamps.
func (tv TypeValues) Merge(page TypesPage) int {
	count := 0
	for _, entity := range page.Entities {
		if entity.EntityID == "" {
			continue
		}
		count += len(entity.Index)
		if tv[entity.EntityID] == nil {
			tv[entity.EntityID] = make(map[string]map[string]model.AttributeValue)
		}
		attrs := tv[entity.EntityID]
		if attrs[page.AttrName] == nil {
			attrs[page.AttrName] = make(map[string]model.AttributeValue)
		}
		for i, ts := range entity.Index {
			if i >= len(entity.Values) || !entity.Values[i].Present() {
				continue
			}
			attrs[page.AttrName][ts] = entity.Values[i]
		}
	}
	return count
}

// Samples converts the accumulated values into time-ordered samples per
// entity, dropping invalid readings.
func (tv TypeValues) Samples(cache *calendar.DateCache) map[string][]model.Sample {
	out := make(map[string][]model.Sample, len(tv))
	for entity, attrs := range tv {
		byTime := make(map[int64]*model.Sample)
		for attr, series := range attrs {
			for ts, v := range series {
				clean, ok := model.Sanitize(attr, v)
				if !ok {
					continue
				}
				t, err := cache.Parse(ts)
				if err != nil {
					continue
				}
				s, ok := byTime[t.Unix()]
				if !ok {
					s = &model.Sample{Time: t, Values: model.Attributes{}}
					byTime[t.Unix()] = s
				}
				s.Values[attr] = clean
			}
		}
		samples := make([]model.Sample, 0, len(byTime))
		for _, s := range byTime {
			samples = append(samples, *s)
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
		out[entity] = samples
	}
	return out
}
