package testsupport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeElasticsearch is an in-memory stand-in for the handful of document
// APIs the document adapter uses. Indices are never auto-created: writes to
// a missing index answer index_not_found_exception. Indices created with a
// "dynamic": "strict" mapping reject unknown fields.
type FakeElasticsearch struct {
	Server *httptest.Server

	mu      sync.Mutex
	indices map[string]*fakeIndex
	calls   map[string]int
	failAll int
}

type fakeIndex struct {
	strict     bool
	properties map[string]bool
	docs       map[string]*fakeDoc
	order      []string
}

type fakeDoc struct {
	version int64
	source  map[string]any
}

// NewFakeElasticsearch starts the fake and closes it when the test ends.
func NewFakeElasticsearch(t testing.TB) *FakeElasticsearch {
	t.Helper()

	f := &FakeElasticsearch{
		indices: make(map[string]*fakeIndex),
		calls:   make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base address of the fake node.
func (f *FakeElasticsearch) URL() string { return f.Server.URL }

// Calls returns how many requests hit op, one of: info, create_index,
// create, get, update, delete, search, count.
func (f *FakeElasticsearch) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// FailWith makes every following request answer status. Zero restores
// normal behaviour.
func (f *FakeElasticsearch) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = status
}

// HasIndex reports whether index exists.
func (f *FakeElasticsearch) HasIndex(index string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.indices[index]
	return ok
}

// Source returns the stored source of a document.
func (f *FakeElasticsearch) Source(index, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indices[index]
	if !ok {
		return nil, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, false
	}
	return doc.source, true
}

func (f *FakeElasticsearch) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAll != 0 {
		writeJSON(w, f.failAll, esError(f.failAll, "cluster_block_exception", "injected failure"))
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/" || r.URL.Path == "":
		f.calls["info"]++
		writeJSON(w, http.StatusOK, map[string]any{
			"version": map[string]any{"number": "8.17.0", "build_flavor": "default"},
			"tagline": "You Know, for Search",
		})
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.calls["create_index"]++
		f.createIndex(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "_create":
		f.calls["create"]++
		f.createDoc(w, r, parts[0], parts[2])
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodGet:
		f.calls["get"]++
		f.getDoc(w, parts[0], parts[2])
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodDelete:
		f.calls["delete"]++
		f.deleteDoc(w, parts[0], parts[2])
	case len(parts) == 3 && parts[1] == "_update":
		f.calls["update"]++
		f.updateDoc(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "_search":
		f.calls["search"]++
		f.search(w, r, parts[0], false)
	case len(parts) == 2 && parts[1] == "_count":
		f.calls["count"]++
		f.search(w, r, parts[0], true)
	default:
		writeJSON(w, http.StatusBadRequest, esError(http.StatusBadRequest, "illegal_argument_exception", "unsupported "+r.Method+" "+r.URL.Path))
	}
}

func (f *FakeElasticsearch) createIndex(w http.ResponseWriter, r *http.Request, name string) {
	if _, ok := f.indices[name]; ok {
		writeJSON(w, http.StatusBadRequest, esError(http.StatusBadRequest, "resource_already_exists_exception", "index ["+name+"] already exists"))
		return
	}

	var body struct {
		Mappings struct {
			Dynamic    string                    `json:"dynamic"`
			Properties map[string]map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, esError(http.StatusBadRequest, "parse_exception", err.Error()))
		return
	}

	idx := &fakeIndex{
		strict:     body.Mappings.Dynamic == "strict",
		properties: make(map[string]bool, len(body.Mappings.Properties)),
		docs:       make(map[string]*fakeDoc),
	}
	for name := range body.Mappings.Properties {
		idx.properties[name] = true
	}
	f.indices[name] = idx
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "index": name})
}

func (f *FakeElasticsearch) createDoc(w http.ResponseWriter, r *http.Request, index, id string) {
	idx, ok := f.indices[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, indexNotFound(index))
		return
	}
	if _, exists := idx.docs[id]; exists {
		writeJSON(w, http.StatusConflict, esError(http.StatusConflict, "version_conflict_engine_exception",
			"["+id+"]: version conflict, document already exists"))
		return
	}

	var source map[string]any
	if err := decodeBody(r, &source); err != nil {
		writeJSON(w, http.StatusBadRequest, esError(http.StatusBadRequest, "document_parsing_exception", err.Error()))
		return
	}
	if field, ok := idx.rejects(source); ok {
		writeJSON(w, http.StatusBadRequest, strictError(field))
		return
	}

	idx.docs[id] = &fakeDoc{version: 1, source: source}
	idx.order = append(idx.order, id)
	writeJSON(w, http.StatusCreated, map[string]any{"_index": index, "_id": id, "_version": 1, "result": "created"})
}

func (f *FakeElasticsearch) getDoc(w http.ResponseWriter, index, id string) {
	idx, ok := f.indices[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, indexNotFound(index))
		return
	}
	doc, ok := idx.docs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"_index": index, "_id": id, "found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_index": index, "_id": id, "_version": doc.version, "found": true, "_source": doc.source,
	})
}

func (f *FakeElasticsearch) deleteDoc(w http.ResponseWriter, index, id string) {
	idx, ok := f.indices[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, indexNotFound(index))
		return
	}
	doc, ok := idx.docs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"_index": index, "_id": id, "result": "not_found"})
		return
	}
	delete(idx.docs, id)
	for i, existing := range idx.order {
		if existing == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"_index": index, "_id": id, "_version": doc.version + 1, "result": "deleted"})
}

func (f *FakeElasticsearch) updateDoc(w http.ResponseWriter, r *http.Request, index, id string) {
	idx, ok := f.indices[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, indexNotFound(index))
		return
	}
	doc, ok := idx.docs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, esError(http.StatusNotFound, "document_missing_exception", "["+id+"]: document missing"))
		return
	}

	var body struct {
		Doc map[string]any `json:"doc"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, esError(http.StatusBadRequest, "x_content_parse_exception", err.Error()))
		return
	}
	if field, ok := idx.rejects(body.Doc); ok {
		writeJSON(w, http.StatusBadRequest, strictError(field))
		return
	}

	for k, v := range body.Doc {
		doc.source[k] = v
	}
	doc.version++
	writeJSON(w, http.StatusOK, map[string]any{"_index": index, "_id": id, "_version": doc.version, "result": "updated"})
}

func (f *FakeElasticsearch) search(w http.ResponseWriter, r *http.Request, index string, countOnly bool) {
	var body struct {
		Query map[string]any   `json:"query"`
		From  int              `json:"from"`
		Size  *int             `json:"size"`
		Sort  []map[string]any `json:"sort"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, esError(http.StatusBadRequest, "parsing_exception", err.Error()))
		return
	}
	terms, err := parseQuery(body.Query)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, esError(http.StatusBadRequest, "parsing_exception", err.Error()))
		return
	}

	idx, ok := f.indices[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, indexNotFound(index))
		return
	}

	var matched []string
	for _, id := range idx.order {
		if matches(idx.docs[id].source, terms) {
			matched = append(matched, id)
		}
	}

	if countOnly {
		writeJSON(w, http.StatusOK, map[string]any{"count": len(matched)})
		return
	}

	if len(body.Sort) > 0 {
		for field, spec := range body.Sort[0] {
			desc := false
			if m, ok := spec.(map[string]any); ok {
				desc = fmt.Sprint(m["order"]) == "desc"
			}
			sort.SliceStable(matched, func(i, j int) bool {
				a, b := idx.docs[matched[i]].source[field], idx.docs[matched[j]].source[field]
				if desc {
					a, b = b, a
				}
				return lessValue(a, b)
			})
		}
	}

	size := 10
	if body.Size != nil {
		size = *body.Size
	}
	start := min(body.From, len(matched))
	end := min(start+size, len(matched))

	hits := make([]map[string]any, 0, end-start)
	for _, id := range matched[start:end] {
		doc := idx.docs[id]
		hits = append(hits, map[string]any{"_index": index, "_id": id, "_version": doc.version, "_source": doc.source})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(matched), "relation": "eq"},
			"hits":  hits,
		},
	})
}

func (idx *fakeIndex) rejects(source map[string]any) (string, bool) {
	if !idx.strict {
		return "", false
	}
	names := make([]string, 0, len(source))
	for name := range source {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !idx.properties[name] {
			return name, true
		}
	}
	return "", false
}

func parseQuery(q map[string]any) (map[string]any, error) {
	if len(q) == 0 {
		return nil, nil
	}
	if _, ok := q["match_all"]; ok && len(q) == 1 {
		return nil, nil
	}
	boolQ, ok := q["bool"].(map[string]any)
	if !ok || len(q) != 1 {
		return nil, fmt.Errorf("unsupported query %v", q)
	}
	filters, ok := boolQ["filter"].([]any)
	if !ok {
		return nil, fmt.Errorf("bool query requires a filter array")
	}

	terms := make(map[string]any)
	for _, raw := range filters {
		clause, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("malformed filter clause")
		}
		term, ok := clause["term"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("only term filters are supported")
		}
		for field, value := range term {
			switch value.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("[term] query on [%s] does not support complex values", field)
			}
			terms[field] = value
		}
	}
	return terms, nil
}

func matches(source, terms map[string]any) bool {
	for field, want := range terms {
		got, ok := source[field]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func lessValue(a, b any) bool {
	af, aerr := strconv.ParseFloat(fmt.Sprint(a), 64)
	bf, berr := strconv.ParseFloat(fmt.Sprint(b), 64)
	if aerr == nil && berr == nil {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func decodeBody(r *http.Request, dest any) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func esError(status int, typ, reason string) map[string]any {
	return map[string]any{
		"error":  map[string]any{"type": typ, "reason": reason, "root_cause": []any{map[string]any{"type": typ, "reason": reason}}},
		"status": status,
	}
}

func indexNotFound(index string) map[string]any {
	return esError(http.StatusNotFound, "index_not_found_exception", "no such index ["+index+"]")
}

func strictError(field string) map[string]any {
	return esError(http.StatusBadRequest, "strict_dynamic_mapping_exception",
		"mapping set to strict, dynamic introduction of ["+field+"] within [_doc] is not allowed")
}
