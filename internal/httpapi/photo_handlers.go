package httpapi

import (
	"net/http"
	"strings"

	"dolltrack/internal/auth"
	"dolltrack/internal/inventory"
)

type photoResponse struct {
	inventory.Photo
	URL string `json:"url"`
}

func newPhotoResponse(p inventory.Photo) photoResponse {
	return photoResponse{Photo: p, URL: "/media/" + p.Path}
}

// addPhoto accepts a multipart upload (field "file", optional
// "make_primary"). The file is written to disk first; if the database
// insert fails the file is removed again so the two cannot diverge.
func (a *API) addPhoto(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.ensurePermission(w, r, auth.PermPhotoCreate)
	if !ok {
		return
	}
	dollID, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	// The doll must exist before we touch the filesystem.
	if _, err := a.svc.GetDoll(r.Context(), dollID); err != nil {
		handleDomainError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	makePrimary := strings.EqualFold(r.FormValue("make_primary"), "true")

	path, err := a.media.Save(dollID, header.Filename, file)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	p, err := a.svc.AddPhoto(r.Context(), identity.ID, dollID, path, makePrimary)
	if err != nil {
		_ = a.media.Remove(path)
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPhotoResponse(p))
}

func (a *API) listPhotos(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermission(w, r, auth.PermDollRead); !ok {
		return
	}
	dollID, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items, err := a.svc.ListPhotos(r.Context(), dollID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	out := make([]photoResponse, 0, len(items))
	var primaryID int64
	for _, p := range items {
		if p.IsPrimary {
			primaryID = p.ID
		}
		out = append(out, newPhotoResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":            out,
		"primary_photo_id": primaryID,
	})
}

func (a *API) setPrimaryPhoto(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.ensurePermission(w, r, auth.PermPhotoSetPrimary)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	p, err := a.svc.SetPrimaryPhoto(r.Context(), identity.ID, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPhotoResponse(p))
}
