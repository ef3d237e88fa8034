package named

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"talentpad/api/internal/store"
)

const idxNamedEntities = "talentpad_named_entities"

// Meili maintains the named-entity lookup index in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. The initial
// connection may fail; the caller proceeds without it and the health loop
// picks it up later.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("named: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxNamedEntities,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("named: create index %s (may already exist): %v", idxNamedEntities, err)
	}

	index := m.client.Index(idxNamedEntities)
	filterable := []interface{}{"docType"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("named: update filterable attrs: %v", err)
	}
	searchable := []string{"name", "slug"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("named: update searchable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("named: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexEntity upserts one entity document into the index.
func (m *Meili) IndexEntity(entity store.NamedEntity) error {
	if !m.healthy.Load() {
		return fmt.Errorf("meilisearch unhealthy")
	}
	doc := map[string]any{
		"id":      entity.ID,
		"slug":    entity.Slug,
		"docType": entity.DocType,
		"docId":   entity.DocID,
		"name":    entity.Name,
	}
	if _, err := m.client.Index(idxNamedEntities).AddDocuments([]map[string]any{doc}, nil); err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("index entity: %w", err)
	}
	return nil
}

// SearchEntities runs a typeahead query against the index.
func (m *Meili) SearchEntities(query string, limit int) ([]store.NamedEntity, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 20
	}

	resp, err := m.client.Index(idxNamedEntities).Search(query, &meili.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]store.NamedEntity, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		doc := map[string]any{}
		if err := hit.Decode(&doc); err != nil {
			continue
		}
		entity := store.NamedEntity{}
		entity.ID, _ = doc["id"].(string)
		entity.Slug, _ = doc["slug"].(string)
		entity.DocType, _ = doc["docType"].(string)
		entity.DocID, _ = doc["docId"].(string)
		entity.Name, _ = doc["name"].(string)
		results = append(results, entity)
	}
	return results, nil
}
