package httpapi

import (
	"net/http"
	"time"

	"dolltrack/internal/auth"
	"dolltrack/internal/inventory"
)

// eventResponse adds a rendered summary line to the raw event row.
type eventResponse struct {
	inventory.Event
	Summary string `json:"summary"`
}

type listEventsResponse struct {
	Items  []eventResponse `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
	AsOf   time.Time       `json:"as_of"`
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	dollID, err := queryInt64(r, "doll_id")
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.writeEventList(w, r, dollID)
}

// listDollEvents serves a single doll's history. Deleted dolls keep
// their events addressable; there is no existence check here.
func (a *API) listDollEvents(w http.ResponseWriter, r *http.Request) {
	dollID, err := pathID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.writeEventList(w, r, dollID)
}

func (a *API) writeEventList(w http.ResponseWriter, r *http.Request, dollID int64) {
	if _, ok := a.ensurePermission(w, r, auth.PermEventRead); !ok {
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

	items, total, err := a.svc.ListEvents(r.Context(), inventory.EventFilter{
		DollID: dollID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	out := make([]eventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse{Event: e, Summary: e.Summary()})
	}
	writeJSON(w, http.StatusOK, listEventsResponse{
		Items:  out,
		Total:  total,
		Limit:  limit,
		Offset: offset,
		AsOf:   time.Now().UTC(),
	})
}
