package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// RegistryError is a non-2xx answer from the Schema Registry.
type RegistryError struct {
	StatusCode int
	Body       string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("schema registry returned %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// SchemaRegistryClient resolves schema ids against a Confluent-compatible Schema
// Registry. Resolved ids are cached per subject and schema for the client's lifetime.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client

	mu  sync.Mutex
	ids map[string]int
}

// NewSchemaRegistryClient constructs a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ids:        make(map[string]int),
	}
}

// SchemaID returns the registry id of schema under subject. A schema the registry
// does not know yet is registered as a new version.
func (c *SchemaRegistryClient) SchemaID(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "\x00" + schema
	c.mu.Lock()
	id, ok := c.ids[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := c.lookup(ctx, subject, schema)
	var regErr *RegistryError
	if errors.As(err, &regErr) && regErr.StatusCode == http.StatusNotFound {
		id, err = c.register(ctx, subject, schema)
	}
	if err != nil {
		return 0, fmt.Errorf("subject %s: %w", subject, err)
	}

	c.mu.Lock()
	c.ids[key] = id
	c.mu.Unlock()
	return id, nil
}

// RegisterRoutes resolves the schema of every routed event type so that missing
// subjects are created before the first event is published.
func (c *SchemaRegistryClient) RegisterRoutes(ctx context.Context) error {
	eventTypes := make([]string, 0, len(routes))
	for eventType := range routes {
		eventTypes = append(eventTypes, eventType)
	}
	sort.Strings(eventTypes)

	var errs error
	for _, eventType := range eventTypes {
		route := routes[eventType]
		if _, err := c.SchemaID(ctx, route.SchemaSubject, route.Schema); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// lookup asks whether schema is already registered under subject.
func (c *SchemaRegistryClient) lookup(ctx context.Context, subject, schema string) (int, error) {
	return c.post(ctx, "/subjects/"+url.PathEscape(subject), schema)
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject, schema string) (int, error) {
	return c.post(ctx, "/subjects/"+url.PathEscape(subject)+"/versions", schema)
}

func (c *SchemaRegistryClient) post(ctx context.Context, path, schema string) (int, error) {
	body, err := json.Marshal(map[string]string{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", registryContentType)
	req.Header.Set("Accept", registryContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &RegistryError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	if payload.ID <= 0 {
		return 0, fmt.Errorf("schema registry returned no id")
	}
	return payload.ID, nil
}
