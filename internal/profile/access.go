package profile

// Ownership is the minimal authorization-relevant projection of a stored
// document: just enough to decide editability and visibility, never the full
// body.
type Ownership struct {
	ID      string
	OwnerID string
	// Visible is nil when the stored document predates the field.
	Visible *bool
}

// EditableBy reports whether the user owns the document. The owner id inside
// the private substructure is the sole ownership credential.
func (o Ownership) EditableBy(userID string) bool {
	return o.OwnerID != "" && o.OwnerID == userID
}

// VisibleTo reports whether the user may see the document at all. Documents
// are visible unless explicitly hidden; owners always see their own drafts.
func (o Ownership) VisibleTo(userID string) bool {
	if o.Visible == nil || *o.Visible {
		return true
	}
	return o.EditableBy(userID)
}

// OwnershipFromData extracts the ownership projection from a raw snapshot.
func OwnershipFromData(id string, data map[string]any) Ownership {
	own := Ownership{ID: id}
	if private, ok := data["private"].(map[string]any); ok {
		own.OwnerID, _ = private["userId"].(string)
	}
	if visible, ok := data["visible"].(bool); ok {
		own.Visible = &visible
	}
	return own
}
