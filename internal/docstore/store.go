package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/store"
	"github.com/google/uuid"
)

// Store implements store.Adapter over Elasticsearch. A collection's Name is
// the index; its RecordType selects the registered schema whose fields
// become the strict mapping of a lazily created index.
type Store struct {
	client    *elasticsearch.Client
	transport http.RoundTripper
	cfg       Config
	schemas   map[string]store.Schema
	logger    *slog.Logger
}

var _ store.Adapter = (*Store)(nil)

// Open builds a client for the configured nodes. No request is issued until
// the first adapter call.
func Open(cfg Config, logger *slog.Logger, schemas ...store.Schema) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("docstore: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: new client: %w", err)
	}

	s := &Store{
		client:    client,
		transport: transport,
		cfg:       cfg,
		schemas:   make(map[string]store.Schema, len(schemas)),
		logger:    logger,
	}
	for _, sc := range schemas {
		s.schemas[sc.Name] = sc
	}
	return s, nil
}

// Close drops idle connections held by the transport.
func (s *Store) Close() error {
	if t, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func (s *Store) schema(c store.Collection) (store.Schema, error) {
	if c.Name == "" {
		return store.Schema{}, errs.MalformedQuery("unknown collection", "index name is required")
	}
	sc, ok := s.schemas[c.RecordType]
	if !ok {
		return store.Schema{}, errs.MalformedQuery("unknown collection", fmt.Sprintf("record type %q is not registered", c.RecordType))
	}
	return sc, nil
}

func (s *Store) refresh() string {
	return strconv.FormatBool(s.cfg.Refresh)
}

// Insert creates a document. A missing index is created with the record
// type's mapping and the insert retried once.
func (s *Store) Insert(ctx context.Context, fields store.Fields, id string, c store.Collection) (string, error) {
	sc, err := s.schema(c)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", errs.Wrap(errs.KindInvalidField, err, "invalid field", "document fields could not be encoded")
	}

	create := func(ctx context.Context) (*esapi.Response, error) {
		return s.client.Create(c.Name, id, bytes.NewReader(body),
			s.client.Create.WithContext(ctx),
			s.client.Create.WithRefresh(s.refresh()),
		)
	}

	var out writeResponse
	apiErr, err := s.roundTrip(ctx, "insert", create, &out)
	if err != nil {
		return "", err
	}
	if apiErr != nil && apiErr.indexMissing() {
		s.logger.InfoContext(ctx, "docstore: provisioning index", "index", c.Name, "record_type", c.RecordType)
		if err := s.createIndex(ctx, c, sc); err != nil {
			return "", err
		}
		apiErr, err = s.roundTrip(ctx, "insert", create, &out)
		if err != nil {
			return "", err
		}
	}
	if apiErr != nil {
		if apiErr.Status == http.StatusConflict {
			return "", errs.Wrap(errs.KindAlreadyExists, apiErr, "record already exists",
				fmt.Sprintf("document %s already exists in %s", id, c))
		}
		return "", apiErr.translate("insert", c, id, errs.KindInvalidField)
	}
	return out.ID, nil
}

func (s *Store) createIndex(ctx context.Context, c store.Collection, sc store.Schema) error {
	properties := make(map[string]any, len(sc.Fields))
	for name, typ := range sc.Fields {
		properties[name] = map[string]string{"type": typ}
	}
	body, err := json.Marshal(map[string]any{
		"settings": map[string]any{
			"number_of_shards":   s.cfg.Shards,
			"number_of_replicas": s.cfg.Replicas,
		},
		"mappings": map[string]any{
			"dynamic":    "strict",
			"_meta":      map[string]string{"record_type": c.RecordType},
			"properties": properties,
		},
	})
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "document store failure", "index mapping could not be encoded")
	}

	apiErr, err := s.roundTrip(ctx, "create index", func(ctx context.Context) (*esapi.Response, error) {
		return s.client.Indices.Create(c.Name,
			s.client.Indices.Create.WithContext(ctx),
			s.client.Indices.Create.WithBody(bytes.NewReader(body)),
		)
	}, nil)
	if err != nil {
		return err
	}
	if apiErr != nil && apiErr.Cause.Type != "resource_already_exists_exception" {
		return apiErr.translate("create index", c, "", errs.KindMalformedQuery)
	}
	return nil
}

// GetOne returns the document with the given id.
func (s *Store) GetOne(ctx context.Context, id string, c store.Collection) (store.Document, error) {
	if _, err := s.schema(c); err != nil {
		return store.Document{}, err
	}

	var out getResponse
	apiErr, err := s.roundTrip(ctx, "get", func(ctx context.Context) (*esapi.Response, error) {
		return s.client.Get(c.Name, id, s.client.Get.WithContext(ctx))
	}, &out)
	if err != nil {
		return store.Document{}, err
	}
	if apiErr != nil {
		return store.Document{}, apiErr.translate("get", c, id, errs.KindMalformedQuery)
	}
	if !out.Found {
		return store.Document{}, notFound(c, id)
	}
	return store.Document{ID: out.ID, Version: out.Version, Fields: out.Source}, nil
}

// Update merges fields into the document and returns its new version. Fields
// outside the index mapping are rejected by the strict mapping and nothing
// is applied.
func (s *Store) Update(ctx context.Context, fields store.Fields, id string, c store.Collection) (int64, error) {
	if _, err := s.schema(c); err != nil {
		return 0, err
	}
	body, err := json.Marshal(map[string]any{"doc": fields})
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidField, err, "invalid field", "document fields could not be encoded")
	}

	var out writeResponse
	apiErr, err := s.roundTrip(ctx, "update", func(ctx context.Context) (*esapi.Response, error) {
		return s.client.Update(c.Name, id, bytes.NewReader(body),
			s.client.Update.WithContext(ctx),
			s.client.Update.WithRefresh(s.refresh()),
		)
	}, &out)
	if err != nil {
		return 0, err
	}
	if apiErr != nil {
		return 0, apiErr.translate("update", c, id, errs.KindInvalidField)
	}
	return out.Version, nil
}

// Delete removes the document with the given id.
func (s *Store) Delete(ctx context.Context, id string, c store.Collection) (string, error) {
	if _, err := s.schema(c); err != nil {
		return "", err
	}

	var out writeResponse
	apiErr, err := s.roundTrip(ctx, "delete", func(ctx context.Context) (*esapi.Response, error) {
		return s.client.Delete(c.Name, id,
			s.client.Delete.WithContext(ctx),
			s.client.Delete.WithRefresh(s.refresh()),
		)
	}, &out)
	if err != nil {
		return "", err
	}
	if apiErr != nil {
		return "", apiErr.translate("delete", c, id, errs.KindMalformedQuery)
	}
	return store.DeleteResult, nil
}

// ListPage searches one page of documents and counts every match with a
// separate request carrying the same query. A missing index is an empty
// collection.
func (s *Store) ListPage(ctx context.Context, filter store.Filter, pageSize, pageNumber int, c store.Collection) ([]store.Document, int64, error) {
	if _, err := s.schema(c); err != nil {
		return nil, 0, err
	}
	offset, err := store.Offset(pageSize, pageNumber)
	if err != nil {
		return nil, 0, err
	}

	query := buildQuery(filter)
	search := map[string]any{
		"query":   query,
		"from":    offset,
		"size":    pageSize,
		"version": true,
	}
	if filter.Order != nil {
		dir := string(filter.Order.Direction)
		if dir == "" {
			dir = string(store.Asc)
		}
		search["sort"] = []any{map[string]any{filter.Order.Field: map[string]string{"order": dir}}}
	}

	searchBody, err := json.Marshal(search)
	if err != nil {
		return nil, 0, errs.Wrap(errs.KindMalformedQuery, err, "malformed query", "filter could not be encoded")
	}
	countBody, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return nil, 0, errs.Wrap(errs.KindMalformedQuery, err, "malformed query", "filter could not be encoded")
	}

	var hits searchResponse
	apiErr, err := s.roundTrip(ctx, "search", func(ctx context.Context) (*esapi.Response, error) {
		return s.client.Search(
			s.client.Search.WithContext(ctx),
			s.client.Search.WithIndex(c.Name),
			s.client.Search.WithBody(bytes.NewReader(searchBody)),
		)
	}, &hits)
	if err != nil {
		return nil, 0, err
	}
	if apiErr != nil {
		if apiErr.indexMissing() {
			return []store.Document{}, 0, nil
		}
		return nil, 0, apiErr.translate("search", c, "", errs.KindMalformedQuery)
	}

	var count countResponse
	apiErr, err = s.roundTrip(ctx, "count", func(ctx context.Context) (*esapi.Response, error) {
		return s.client.Count(
			s.client.Count.WithContext(ctx),
			s.client.Count.WithIndex(c.Name),
			s.client.Count.WithBody(bytes.NewReader(countBody)),
		)
	}, &count)
	if err != nil {
		return nil, 0, err
	}
	if apiErr != nil {
		return nil, 0, apiErr.translate("count", c, "", errs.KindMalformedQuery)
	}

	docs := make([]store.Document, 0, len(hits.Hits.Hits))
	for _, h := range hits.Hits.Hits {
		docs = append(docs, store.Document{ID: h.ID, Version: h.Version, Fields: h.Source})
	}
	return docs, count.Count, nil
}

func buildQuery(filter store.Filter) map[string]any {
	if filter.IsMatchAll() {
		return map[string]any{"match_all": map[string]any{}}
	}
	terms := make([]any, 0, len(filter.Predicates))
	for _, p := range filter.Predicates {
		terms = append(terms, map[string]any{"term": map[string]any{p.Field: p.Value}})
	}
	return map[string]any{"bool": map[string]any{"filter": terms}}
}

// roundTrip performs one request under the configured timeout and always
// closes the response body. Transport failures come back as err; a non 2xx
// answer comes back decoded as apiErr.
func (s *Store) roundTrip(ctx context.Context, op string, call func(context.Context) (*esapi.Response, error), out any) (*apiError, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := call(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "docstore: request failed", "op", op, "error", err)
		return nil, errs.Wrap(errs.KindServiceUnavailable, err, "document store unavailable",
			fmt.Sprintf("%s could not reach the document store", op))
	}
	defer res.Body.Close()

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()

	if res.IsError() {
		apiErr := &apiError{Status: res.StatusCode}
		_ = dec.Decode(apiErr)
		return apiErr, nil
	}
	if out != nil {
		if err := dec.Decode(out); err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "document store failure",
				fmt.Sprintf("%s returned an undecodable body", op))
		}
	}
	return nil, nil
}

func notFound(c store.Collection, id string) error {
	return errs.NotFound("record not found", fmt.Sprintf("no document %s in %s", id, c))
}
