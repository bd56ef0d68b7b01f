package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/w-h-a/spinach/fault"
	"github.com/w-h-a/spinach/store"
	getsafe "github.com/w-h-a/spinach/util/get_safe"
)

type qdrantStore struct {
	options store.Options
	client  *http.Client
}

func (s *qdrantStore) Add(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		payload := map[string]any{
			"record_id": rec.Id,
			"content":   rec.Content,
			"metadata":  rec.Metadata,
		}
		points = append(points, map[string]any{
			// qdrant point ids must be uuids; derive one from the record id so
			// a duplicate record id lands on the same point and overwrites it
			"id":      uuid.NewSHA1(uuid.NameSpaceOID, []byte(rec.Id)).String(),
			"vector":  rec.Embedding,
			"payload": payload,
		})
	}

	req := map[string]any{
		"points": points,
	}

	var rsp qdrantEnvelope[json.RawMessage]

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPut, path, req, &rsp); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrStore, err)
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return fmt.Errorf("%w: %s", fault.ErrStore, rsp.Status.Error)
	}

	return nil
}

func (s *qdrantStore) Query(ctx context.Context, vector []float32, topK int, minScore float64) ([]store.Match, error) {
	if topK < 1 {
		return []store.Match{}, nil
	}

	req := map[string]any{
		"vector":          vector,
		"limit":           topK,
		"with_vector":     true,
		"with_payload":    true,
		"score_threshold": minScore,
	}

	var rsp qdrantEnvelope[[]qdrantPointResult]

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrStore, err)
	}

	matches := make([]store.Match, 0, len(rsp.Result))
	for _, point := range rsp.Result {
		matches = append(matches, store.Match{
			Record: recordFromPoint(point),
			Score:  point.Score,
		})
	}

	return matches, nil
}

func (s *qdrantStore) DeleteByFilter(ctx context.Context, key string, value string) (int, error) {
	count, err := s.countByFilter(ctx, key, value)
	if err != nil {
		return 0, err
	}

	if count == 0 {
		return 0, nil
	}

	req := map[string]any{
		"filter": metadataFilter(key, value),
	}

	var rsp qdrantEnvelope[json.RawMessage]

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return 0, fmt.Errorf("%w: %v", fault.ErrStore, err)
	}

	return count, nil
}

func (s *qdrantStore) Reset(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	if err := s.do(ctx, http.MethodDelete, path, nil, &rsp); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrStore, err)
	}

	if err := s.createCollection(); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrStore, err)
	}

	return nil
}

func (s *qdrantStore) Count(ctx context.Context) (int, error) {
	req := map[string]any{
		"exact": true,
	}

	var rsp qdrantEnvelope[qdrantCountResult]

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return 0, fmt.Errorf("%w: %v", fault.ErrStore, err)
	}

	return rsp.Result.Count, nil
}

func (s *qdrantStore) List(ctx context.Context) ([]store.Record, error) {
	records := []store.Record{}
	var offset any

	for {
		req := map[string]any{
			"limit":        256,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var rsp qdrantEnvelope[qdrantScrollResult]

		path := fmt.Sprintf("/collections/%s/points/scroll", url.PathEscape(s.options.Collection))

		if err := s.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrStore, err)
		}

		for _, point := range rsp.Result.Points {
			records = append(records, recordFromPoint(point))
		}

		if rsp.Result.NextOffset == nil {
			break
		}
		offset = rsp.Result.NextOffset
	}

	return records, nil
}

func (s *qdrantStore) countByFilter(ctx context.Context, key string, value string) (int, error) {
	req := map[string]any{
		"exact":  true,
		"filter": metadataFilter(key, value),
	}

	var rsp qdrantEnvelope[qdrantCountResult]

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return 0, fmt.Errorf("%w: %v", fault.ErrStore, err)
	}

	return rsp.Result.Count, nil
}

func metadataFilter(key string, value string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "metadata." + key,
				"match": map[string]any{"value": value},
			},
		},
	}
}

func recordFromPoint(point qdrantPointResult) store.Record {
	rec := store.Record{
		Id:        point.Id,
		Embedding: point.Vector,
	}
	if id := getsafe.String(point.Payload, "record_id"); len(id) > 0 {
		rec.Id = id
	}
	rec.Content = getsafe.String(point.Payload, "content")
	rec.Metadata = getsafe.Metadata(point.Payload, "metadata")
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return rec
}

func (s *qdrantStore) do(ctx context.Context, method string, path string, req any, rsp any) error {
	u := s.options.Location + path
	var buf io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")

	if len(s.options.ApiKey) > 0 {
		request.Header.Set("api-key", s.options.ApiKey)
		request.Header.Set("Authorization", "Bearer "+s.options.ApiKey)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("qdrant http %d: %s", response.StatusCode, string(payload))
	}

	if rsp != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, rsp); err != nil {
			return err
		}
	}

	return nil
}

func (s *qdrantStore) configure() error {
	exists, err := s.collectionExists()
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return s.createCollection()
}

func (s *qdrantStore) collectionExists() (bool, error) {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	err := s.do(context.Background(), http.MethodGet, path, nil, &rsp)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, err
	}

	return strings.EqualFold(rsp.Status.State, "ok"), nil
}

func (s *qdrantStore) createCollection() error {
	distance := s.options.Distance
	if len(distance) == 0 {
		distance = "Cosine"
	}
	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.options.VectorSize,
			"distance": distance,
		},
	}

	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	if err := s.do(context.Background(), http.MethodPut, path, req, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

func NewStore(opts ...store.Option) store.Store {
	options := store.NewOptions(opts...)

	if len(options.Location) == 0 ||
		len(options.Collection) == 0 ||
		options.VectorSize == 0 {
		panic("missing location, collection, or vector size for qdrant store")
	}

	client := &http.Client{
		Timeout: 15 * time.Second,
	}

	s := &qdrantStore{
		options: options,
		client:  client,
	}

	if err := s.configure(); err != nil {
		panic(err)
	}

	return s
}
