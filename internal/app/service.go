package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"talentpad/api/internal/auth"
	"talentpad/api/internal/authpw"
	"talentpad/api/internal/config"
	"talentpad/api/internal/history"
	"talentpad/api/internal/oplog"
	"talentpad/api/internal/ops"
	"talentpad/api/internal/profile"
	"talentpad/api/internal/store"
	"talentpad/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type userStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type namedService interface {
	EnsureForDocument(ctx context.Context, docType, docID, name string) error
	Lookup(ctx context.Context, slug string) (store.NamedEntity, error)
	Search(ctx context.Context, query string, limit int) []store.NamedEntity
}

type historyService interface {
	CommitSnapshot(docType, docID string, data map[string]any, version int64, author string) (history.CommitInfo, error)
	History(docType, docID string, limit int) ([]history.CommitInfo, error)
	SnapshotAt(docType, docID, hash string) (map[string]any, error)
}

type broadcaster interface {
	Broadcast(docType, docID string, version int64, project func(userID string) map[string]any)
}

type mediaService interface {
	UploadLogo(ctx context.Context, docType, docID, contentType string, body io.Reader, size int64) (string, error)
}

type Service struct {
	cfg      config.Config
	log      oplog.Log
	users    userStore
	sessions sessionStore
	authpw   *authpw.Service
	named    namedService
	history  historyService
	hub      broadcaster
	media    mediaService
}

func New(cfg config.Config, docLog oplog.Log, users userStore, sessions sessionStore, authService *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		log:      docLog,
		users:    users,
		sessions: sessions,
		authpw:   authService,
	}
}

// WithNamedEntities enables the post-commit named-entity recompute.
func (s *Service) WithNamedEntities(named namedService) *Service {
	s.named = named
	return s
}

// WithHistory enables the snapshot audit archive.
func (s *Service) WithHistory(h historyService) *Service {
	s.history = h
	return s
}

// WithBroadcaster enables realtime snapshot fan-out.
func (s *Service) WithBroadcaster(hub broadcaster) *Service {
	s.hub = hub
	return s
}

// WithMedia enables logo uploads.
func (s *Service) WithMedia(m mediaService) *Service {
	s.media = m
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// SubmitEdit applies an operation batch to a profile document on behalf of
// the acting user. The order is fixed: ownership is checked before any
// operation is validated, so an unauthorized caller never learns whether its
// batch was well formed, and a caller with a malformed batch never learns
// whether it would have been authorized. Validation accepts or rejects the
// batch as a whole.
func (s *Service) SubmitEdit(ctx context.Context, docType profile.Type, docID string, raws []ops.RawOp, actingUserID string) (map[string]any, error) {
	ownership, err := s.log.FetchOwnership(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, oplog.ErrNotFound) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if !ownership.EditableBy(actingUserID) {
		return nil, errForbidden()
	}

	schema, ok := profile.SchemaFor(docType)
	if !ok {
		return nil, errNotFound()
	}
	batch, err := ops.ValidateBatch(schema, raws)
	if err != nil {
		var invalid *ops.InvalidOpError
		if errors.As(err, &invalid) {
			return nil, errValidation(invalid.Path, invalid.Reason)
		}
		return nil, err
	}

	snap, err := s.log.Submit(ctx, docType, docID, batch)
	if err != nil {
		if errors.Is(err, oplog.ErrNotFound) {
			return nil, errNotFound()
		}
		if errors.Is(err, oplog.ErrVersionConflict) {
			return nil, errCommit("concurrent edit, retry the batch")
		}
		return nil, errCommit(err.Error())
	}

	s.afterCommit(snap, ops.Touches(batch, profile.FieldName), actingUserID)

	view := profile.ProjectFor(snap.ID, snap.Data, actingUserID)
	view["version"] = snap.Version
	return view, nil
}

// afterCommit runs the best-effort side effects of a committed snapshot.
// None of them can fail the already-committed edit; errors are logged and the
// edit stays successful.
func (s *Service) afterCommit(snap oplog.Snapshot, nameTouched bool, actingUserID string) {
	if s.named != nil && nameTouched {
		name, _ := snap.Data[profile.FieldName].(string)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.named.EnsureForDocument(ctx, string(snap.Type), snap.ID, name); err != nil {
				log.Printf("named entity recompute failed for %s/%s: %v", snap.Type, snap.ID, err)
			}
		}()
	}
	if s.history != nil {
		go func() {
			if _, err := s.history.CommitSnapshot(string(snap.Type), snap.ID, snap.Data, snap.Version, actingUserID); err != nil {
				log.Printf("history commit failed for %s/%s: %v", snap.Type, snap.ID, err)
			}
		}()
	}
	if s.hub != nil {
		s.hub.Broadcast(string(snap.Type), snap.ID, snap.Version, func(userID string) map[string]any {
			view := profile.ProjectFor(snap.ID, snap.Data, userID)
			view["version"] = snap.Version
			return view
		})
	}
}

// ListProfiles returns the ids of the documents visible to the user. The
// visibility filter runs on the ownership projection, before any document
// body leaves the log.
func (s *Service) ListProfiles(ctx context.Context, docType profile.Type, userID string) ([]string, error) {
	ownerships, err := s.log.ListOwnership(ctx, docType)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ownerships))
	for _, own := range ownerships {
		if own.VisibleTo(userID) {
			ids = append(ids, own.ID)
		}
	}
	return ids, nil
}

// GetProfile returns the projected view of one document. A document hidden
// from the user is indistinguishable from an absent one.
func (s *Service) GetProfile(ctx context.Context, docType profile.Type, docID, userID string) (map[string]any, error) {
	snap, err := s.log.Fetch(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, oplog.ErrNotFound) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if !profile.OwnershipFromData(snap.ID, snap.Data).VisibleTo(userID) {
		return nil, errNotFound()
	}
	view := profile.ProjectFor(snap.ID, snap.Data, userID)
	view["version"] = snap.Version
	return view, nil
}

// BulkFetch returns projected views aligned with the requested ids. Absent
// and hidden documents yield nil entries so the caller keeps its positions.
func (s *Service) BulkFetch(ctx context.Context, docType profile.Type, ids []string, userID string) ([]map[string]any, error) {
	snaps, err := s.log.BulkFetch(ctx, docType, ids)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, len(ids))
	for i, id := range ids {
		snap, ok := snaps[id]
		if !ok {
			continue
		}
		if !profile.OwnershipFromData(snap.ID, snap.Data).VisibleTo(userID) {
			continue
		}
		view := profile.ProjectFor(snap.ID, snap.Data, userID)
		view["version"] = snap.Version
		views[i] = view
	}
	return views, nil
}

// CreateProfile synthesizes a default document owned by the acting user.
func (s *Service) CreateProfile(ctx context.Context, docType profile.Type, userID string) (map[string]any, error) {
	if _, ok := profile.SchemaFor(docType); !ok {
		return nil, errNotFound()
	}
	docID := util.NewID(string(docType))
	snap, err := s.log.Create(ctx, docType, docID, profile.Defaults(docType, userID))
	if err != nil {
		return nil, errCommit(err.Error())
	}

	s.afterCommit(snap, true, userID)

	view := profile.ProjectFor(snap.ID, snap.Data, userID)
	view["version"] = snap.Version
	return view, nil
}

// MyProfile finds the document owned by the acting user, if any.
func (s *Service) MyProfile(ctx context.Context, docType profile.Type, userID string) (map[string]any, error) {
	ownerships, err := s.log.ListOwnership(ctx, docType)
	if err != nil {
		return nil, err
	}
	for _, own := range ownerships {
		if own.EditableBy(userID) {
			return s.GetProfile(ctx, docType, own.ID, userID)
		}
	}
	return nil, errNotFound()
}

// UploadLogo stores a logo image and points the document's logoURL at it.
// Only the owner may upload; the URL change goes through the same sanitized
// edit path as any other field.
func (s *Service) UploadLogo(ctx context.Context, docType profile.Type, docID, userID, contentType string, body io.Reader, size int64) (map[string]any, error) {
	if s.media == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Logo storage not configured", nil)
	}
	ownership, err := s.log.FetchOwnership(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, oplog.ErrNotFound) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if !ownership.EditableBy(userID) {
		return nil, errForbidden()
	}

	url, err := s.media.UploadLogo(ctx, string(docType), docID, contentType, body, size)
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "UPLOAD_FAILED", err.Error(), nil)
	}

	raw, err := ops.ReplaceRaw("logoURL", url)
	if err != nil {
		return nil, err
	}
	return s.SubmitEdit(ctx, docType, docID, []ops.RawOp{raw}, userID)
}

// ProfileHistory lists the snapshot archive of a document, owner only.
func (s *Service) ProfileHistory(ctx context.Context, docType profile.Type, docID, userID string, limit int) ([]history.CommitInfo, error) {
	if s.history == nil {
		return nil, errNotFound()
	}
	ownership, err := s.log.FetchOwnership(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, oplog.ErrNotFound) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if !ownership.EditableBy(userID) {
		return nil, errForbidden()
	}
	return s.history.History(string(docType), docID, limit)
}

// ProfileSnapshotAt reads the archived snapshot behind one history commit,
// owner only. The archived data is raw, so it goes through the same
// projection as a live fetch before leaving.
func (s *Service) ProfileSnapshotAt(ctx context.Context, docType profile.Type, docID, userID, hash string) (map[string]any, error) {
	if s.history == nil {
		return nil, errNotFound()
	}
	ownership, err := s.log.FetchOwnership(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, oplog.ErrNotFound) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if !ownership.EditableBy(userID) {
		return nil, errForbidden()
	}
	data, err := s.history.SnapshotAt(string(docType), docID, hash)
	if err != nil {
		return nil, errNotFound()
	}
	return profile.ProjectFor(docID, data, userID), nil
}

// CanSubscribe reports whether the user may watch a document's updates.
func (s *Service) CanSubscribe(ctx context.Context, docType profile.Type, docID, userID string) error {
	ownership, err := s.log.FetchOwnership(ctx, docType, docID)
	if err != nil {
		if errors.Is(err, oplog.ErrNotFound) {
			return errNotFound()
		}
		return err
	}
	if !ownership.VisibleTo(userID) {
		return errNotFound()
	}
	return nil
}

func (s *Service) IssueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.IssueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.users.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// LookupEntity resolves a slug to the document it names.
func (s *Service) LookupEntity(ctx context.Context, slug string) (map[string]any, error) {
	if s.named == nil {
		return nil, errNotFound()
	}
	entity, err := s.named.Lookup(ctx, slug)
	if err != nil {
		return nil, err
	}
	return entityView(entity), nil
}

// SearchEntities finds named entities matching a query.
func (s *Service) SearchEntities(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	if s.named == nil {
		return []map[string]any{}, nil
	}
	entities := s.named.Search(ctx, query, limit)
	items := make([]map[string]any, 0, len(entities))
	for _, entity := range entities {
		items = append(items, entityView(entity))
	}
	return items, nil
}

func entityView(entity store.NamedEntity) map[string]any {
	return map[string]any{
		"slug":    entity.Slug,
		"name":    entity.Name,
		"docType": entity.DocType,
		"docId":   entity.DocID,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}
