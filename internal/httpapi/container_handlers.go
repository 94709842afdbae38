package httpapi

import (
	"net/http"
	"strconv"

	"dolltrack/internal/audit"
	"dolltrack/internal/auth"
)

type containerRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type reorderRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

func (a *API) listContainers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermission(w, r, auth.PermContainerRead); !ok {
		return
	}
	items, err := a.svc.ListContainers(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createContainer(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.ensurePermission(w, r, auth.PermContainerManage)
	if !ok {
		return
	}

	var req containerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c, err := a.svc.CreateContainer(r.Context(), identity.ID, req.Name)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "container.create", map[string]any{
		"container_id": strconv.FormatInt(c.ID, 10),
		"name":         c.Name,
	})
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) renameContainer(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.ensurePermission(w, r, auth.PermContainerManage)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	var req containerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c, err := a.svc.RenameContainer(r.Context(), identity.ID, id, req.Name)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "container.rename", map[string]any{
		"container_id": strconv.FormatInt(c.ID, 10),
		"name":         c.Name,
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) reorderContainer(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.ensurePermission(w, r, auth.PermContainerManage)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	var req reorderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	items, err := a.svc.ReorderContainer(r.Context(), identity.ID, id, req.Direction)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "container.reorder", map[string]any{
		"container_id": strconv.FormatInt(id, 10),
		"direction":    req.Direction,
	})
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) deleteContainer(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.ensurePermission(w, r, auth.PermContainerManage)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.svc.DeleteContainer(r.Context(), identity.ID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "container.delete", map[string]any{
		"container_id": strconv.FormatInt(id, 10),
	})
	w.WriteHeader(http.StatusNoContent)
}
