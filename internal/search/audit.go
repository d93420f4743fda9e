package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"coachbook/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// AuditIndexConfig mirrors config.ElasticsearchConfig without importing the
// config package (which imports this one's siblings).
type AuditIndexConfig struct {
	URL        string
	Username   string
	Password   string
	Index      string
	MaxRetries int
}

// AuditIndexClient maintains the read-side index over the audit trail used by
// dispute investigation. Postgres stays the durable record; indexing here is
// fire-and-forget after commit.
type AuditIndexClient struct {
	client *elasticsearch.Client
	config AuditIndexConfig
}

// AuditDoc is one indexed audit record, either a state transition or a
// payment event.
type AuditDoc struct {
	Kind          string     `json:"kind"`
	BookingID     int64      `json:"booking_id"`
	ParticipantID *int64     `json:"participant_id,omitempty"`
	Field         string     `json:"field,omitempty"`
	OldValue      string     `json:"old_value,omitempty"`
	NewValue      string     `json:"new_value,omitempty"`
	ActorID       *int64     `json:"actor_id,omitempty"`
	Reason        *string    `json:"reason,omitempty"`
	ExternalRef   string     `json:"external_ref,omitempty"`
	Status        string     `json:"status,omitempty"`
	AmountCents   int64      `json:"amount_cents,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

const (
	auditKindTransition   = "transition"
	auditKindPaymentEvent = "payment_event"
)

func NewAuditIndexClient(cfg AuditIndexConfig) (*AuditIndexClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &AuditIndexClient{
		client: es,
		config: cfg,
	}

	if err := client.ensureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

func (c *AuditIndexClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Audit index already exists", "index", c.config.Index)
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"kind":           map[string]interface{}{"type": "keyword"},
				"booking_id":     map[string]interface{}{"type": "long"},
				"participant_id": map[string]interface{}{"type": "long"},
				"field":          map[string]interface{}{"type": "keyword"},
				"old_value":      map[string]interface{}{"type": "keyword"},
				"new_value":      map[string]interface{}{"type": "keyword"},
				"actor_id":       map[string]interface{}{"type": "long"},
				"reason":         map[string]interface{}{"type": "text"},
				"external_ref":   map[string]interface{}{"type": "keyword"},
				"status":         map[string]interface{}{"type": "keyword"},
				"amount_cents":   map[string]interface{}{"type": "long"},
				"created_at": map[string]interface{}{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
			},
		},
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  strings.NewReader(string(mappingJSON)),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created audit index", "index", c.config.Index)
	return nil
}

// IndexTransition indexes one state-transition audit record.
func (c *AuditIndexClient) IndexTransition(ctx context.Context, t *models.StateTransition) error {
	doc := AuditDoc{
		Kind:          auditKindTransition,
		BookingID:     t.BookingID,
		ParticipantID: t.ParticipantID,
		Field:         t.Field,
		OldValue:      t.OldValue,
		NewValue:      t.NewValue,
		ActorID:       t.ActorID,
		Reason:        t.Reason,
		CreatedAt:     t.CreatedAt,
	}
	return c.index(ctx, fmt.Sprintf("t-%d", t.ID), doc)
}

// IndexPaymentEvent indexes one payment audit record.
func (c *AuditIndexClient) IndexPaymentEvent(ctx context.Context, e *models.PaymentEvent) error {
	doc := AuditDoc{
		Kind:          auditKindPaymentEvent,
		BookingID:     e.BookingID,
		ParticipantID: e.ParticipantID,
		ExternalRef:   e.ExternalRef,
		Status:        e.Status,
		AmountCents:   e.AmountCents,
		CreatedAt:     e.CreatedAt,
	}
	return c.index(ctx, fmt.Sprintf("e-%d", e.ID), doc)
}

func (c *AuditIndexClient) index(ctx context.Context, docID string, doc AuditDoc) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal audit doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: docID,
		Body:       strings.NewReader(string(docJSON)),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index audit doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}

	return nil
}

// SearchByBooking returns the indexed audit trail for one booking, oldest
// first, optionally filtered to one record kind.
func (c *AuditIndexClient) SearchByBooking(ctx context.Context, bookingID int64, kind string, limit int) ([]AuditDoc, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	mustQueries := []map[string]interface{}{
		{"term": map[string]interface{}{"booking_id": bookingID}},
	}
	if kind != "" {
		mustQueries = append(mustQueries, map[string]interface{}{
			"term": map[string]interface{}{"kind": kind},
		})
	}

	searchRequest := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": mustQueries,
			},
		},
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "asc"}},
		},
		"size": limit,
	}

	searchJSON, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  strings.NewReader(string(searchJSON)),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source AuditDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]AuditDoc, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		docs[i] = hit.Source
	}

	return docs, nil
}

// HealthCheck verifies cluster availability.
func (c *AuditIndexClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}
