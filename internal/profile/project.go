package profile

// ProjectFor renders a stored snapshot into the view delivered to a client.
// The editability flag is computed while the private substructure is still
// present; only then is it stripped. The output never contains the private
// key, not even for the owner.
func ProjectFor(id string, data map[string]any, userID string) map[string]any {
	view := make(map[string]any, len(data)+2)
	for k, v := range data {
		view[k] = v
	}

	view["id"] = id
	view["editableByCurrentUser"] = OwnershipFromData(id, data).EditableBy(userID)
	if _, ok := view["visible"]; !ok {
		// Forward-compatible default: documents written before the field
		// existed behave as visible.
		view["visible"] = true
	}
	delete(view, "private")
	return view
}
