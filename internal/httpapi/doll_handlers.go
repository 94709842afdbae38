package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"dolltrack/internal/auth"
	"dolltrack/internal/inventory"
)

type createDollRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	ContainerID int64  `json:"container_id" validate:"omitempty,gt=0"`
	PurchaseURL string `json:"purchase_url" validate:"omitempty,url,max=512"`
}

// patchDollRequest: a blank purchase_url clears the stored link, so the
// url tag stays off and the service validates non-blank values.
type patchDollRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	ContainerID *int64  `json:"container_id" validate:"omitempty,gt=0"`
	PurchaseURL *string `json:"purchase_url" validate:"omitempty,max=512"`
}

// dollResponse adds the derived legacy placement view and media URLs
// on top of the stored doll.
type dollResponse struct {
	inventory.Doll
	Location        string `json:"location,omitempty"`
	BagNumber       *int   `json:"bag_number,omitempty"`
	PrimaryPhotoURL string `json:"primary_photo_url,omitempty"`
	PhotosCount     int    `json:"photos_count"`
}

func newDollResponse(d inventory.Doll) dollResponse {
	resp := dollResponse{Doll: d, PhotosCount: d.PhotosCount}
	if loc, bag, ok := inventory.LegacyLocation(d.Container); ok {
		resp.Location = loc
		if loc == "BAG" {
			n := bag
			resp.BagNumber = &n
		}
	}
	if d.PrimaryPhotoPath != "" {
		resp.PrimaryPhotoURL = "/media/" + d.PrimaryPhotoPath
	}
	return resp
}

type listDollsResponse struct {
	Items  []dollResponse `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	AsOf   time.Time      `json:"as_of"`
}

func (a *API) listDolls(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ensurePermission(w, r, auth.PermDollRead)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	containerID, err := queryInt64(r, "container_id")
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	includeDeleted := queryBool(r, "include_deleted")
	if includeDeleted {
		// Seeing soft-deleted dolls is part of the delete capability.
		if err := auth.Require(id, auth.PermDollDelete); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}

	items, total, err := a.svc.ListDolls(r.Context(), inventory.DollFilter{
		Query:          r.URL.Query().Get("q"),
		ContainerID:    containerID,
		IncludeDeleted: includeDeleted,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	out := make([]dollResponse, 0, len(items))
	for _, d := range items {
		out = append(out, newDollResponse(d))
	}
	writeJSON(w, http.StatusOK, listDollsResponse{
		Items:  out,
		Total:  total,
		Limit:  limit,
		Offset: offset,
		AsOf:   time.Now().UTC(),
	})
}

func (a *API) suggestDolls(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermission(w, r, auth.PermDollRead); !ok {
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items, err := a.svc.SuggestDolls(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	out := make([]dollResponse, 0, len(items))
	for _, d := range items {
		out = append(out, newDollResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (a *API) createDoll(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ensurePermission(w, r, auth.PermDollCreate)
	if !ok {
		return
	}

	var req createDollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	d, err := a.svc.CreateDoll(r.Context(), id.ID, req.Name, req.ContainerID, req.PurchaseURL)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/dolls/%d", d.ID))
	writeJSON(w, http.StatusCreated, newDollResponse(d))
}

func (a *API) getDoll(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermission(w, r, auth.PermDollRead); !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	d, err := a.svc.GetDoll(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDollResponse(d))
}

// patchDoll updates name and/or placement. Each field carries its own
// permission so a kid tier can move a doll without being able to
// rename it.
func (a *API) patchDoll(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	var req patchDollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Name == nil && req.ContainerID == nil && req.PurchaseURL == nil {
		writeError(w, r, http.StatusUnprocessableEntity, "nothing to update")
		return
	}

	// Check every required permission before mutating anything, so a
	// half-permitted patch does not apply partially. The purchase link
	// is metadata and rides on the rename permission.
	if req.Name != nil || req.PurchaseURL != nil {
		if err := auth.Require(identity, auth.PermDollRename); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	if req.ContainerID != nil {
		if err := auth.Require(identity, auth.PermDollMove); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}

	var d inventory.Doll
	if req.Name != nil {
		if d, err = a.svc.RenameDoll(r.Context(), identity.ID, id, *req.Name); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	if req.ContainerID != nil {
		if d, err = a.svc.MoveDoll(r.Context(), identity.ID, id, *req.ContainerID); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	if req.PurchaseURL != nil {
		if d, err = a.svc.SetPurchaseURL(r.Context(), identity.ID, id, *req.PurchaseURL); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newDollResponse(d))
}

func (a *API) deleteDoll(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.ensurePermission(w, r, auth.PermDollDelete)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.svc.DeleteDoll(r.Context(), identity.ID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
