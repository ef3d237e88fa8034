// Package named maintains the derived named-entity records: for every
// profile, a unique slug guessed from its display name. The edit gateway
// recomputes the record after any committed batch that touched the name;
// the recompute is best-effort and never affects the edit's own outcome.
package named

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"talentpad/api/internal/store"
	"talentpad/api/internal/util"
)

// EntityStore is the source of truth for named entities; Meilisearch is only
// a lookup accelerator on top of it.
type EntityStore interface {
	UpsertNamedEntity(ctx context.Context, entity store.NamedEntity) error
	GetNamedEntityBySlug(ctx context.Context, slug string) (store.NamedEntity, error)
	SlugTaken(ctx context.Context, slug, docType, docID string) (bool, error)
	SearchNamedEntities(ctx context.Context, query string, limit int) ([]store.NamedEntity, error)
}

// Service recomputes and serves named-entity records. meili may be nil when
// Meilisearch is not configured.
type Service struct {
	store EntityStore
	meili *Meili
}

func NewService(entityStore EntityStore, meili *Meili) *Service {
	return &Service{store: entityStore, meili: meili}
}

// EnsureForDocument recomputes the slug entity for a document whose name
// changed. The slug is guessed from the name; collisions with other documents
// get a numeric suffix.
func (s *Service) EnsureForDocument(ctx context.Context, docType, docID, name string) error {
	base := Slugify(name)
	if base == "" {
		base = docID
	}

	slug := base
	for suffix := 2; ; suffix++ {
		taken, err := s.store.SlugTaken(ctx, slug, docType, docID)
		if err != nil {
			return fmt.Errorf("guess slug: %w", err)
		}
		if !taken {
			break
		}
		slug = fmt.Sprintf("%s-%d", base, suffix)
	}

	entity := store.NamedEntity{
		ID:      util.NewID("named"),
		Slug:    slug,
		DocType: docType,
		DocID:   docID,
		Name:    name,
	}
	if err := s.store.UpsertNamedEntity(ctx, entity); err != nil {
		return fmt.Errorf("upsert named entity: %w", err)
	}

	// Fire-and-forget into the index; Postgres remains authoritative.
	if s.meili != nil && s.meili.Healthy() {
		if err := s.meili.IndexEntity(entity); err != nil {
			log.Printf("named: index entity %s: %v", entity.Slug, err)
		}
	}
	return nil
}

// Lookup resolves a slug to its entity record.
func (s *Service) Lookup(ctx context.Context, slug string) (store.NamedEntity, error) {
	return s.store.GetNamedEntityBySlug(ctx, slug)
}

// Search tries Meilisearch when healthy and falls back to the store.
func (s *Service) Search(ctx context.Context, query string, limit int) []store.NamedEntity {
	if s.meili != nil && s.meili.Healthy() {
		results, err := s.meili.SearchEntities(query, limit)
		if err == nil {
			return results
		}
		log.Printf("named: meilisearch error, falling back to store: %v", err)
	}

	results, err := s.store.SearchNamedEntities(ctx, query, limit)
	if err != nil {
		log.Printf("named: store search error: %v", err)
		return []store.NamedEntity{}
	}
	return results
}

// Slugify lowercases a name and collapses everything that is not a letter or
// digit into single dashes.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
