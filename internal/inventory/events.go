package inventory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types. The payload column is a tagged union keyed by this value.
const (
	EventDollCreated     = "DOLL_CREATED"
	EventDollRenamed     = "DOLL_RENAMED"
	EventDollMoved       = "DOLL_MOVED"
	EventDollDeleted     = "DOLL_DELETED"
	EventPhotoAdded      = "PHOTO_ADDED"
	EventPhotoSetPrimary = "PHOTO_SET_PRIMARY"
)

// Event is one row of the append-only audit trail. Rows are written in
// the same transaction as the mutation they describe and are never
// updated or deleted. Ordering is (doll_id, created_at, id); id breaks
// ties between same-timestamp events.
type Event struct {
	ID        int64           `json:"id"`
	DollID    int64           `json:"doll_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// Payload variants. Container names are captured at mutation time so an
// event stays renderable after the doll moves again or is deleted.

type DollCreatedPayload struct {
	Name        string `json:"name"`
	ContainerID int64  `json:"container_id"`
	Container   string `json:"container"`
}

type DollRenamedPayload struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type DollMovedPayload struct {
	OldContainerID int64  `json:"old_container_id"`
	OldContainer   string `json:"old_container"`
	NewContainerID int64  `json:"new_container_id"`
	NewContainer   string `json:"new_container"`
}

type DollDeletedPayload struct {
	Name string `json:"name"`
}

type PhotoAddedPayload struct {
	PhotoID int64  `json:"photo_id"`
	Path    string `json:"path"`
}

type PhotoSetPrimaryPayload struct {
	PhotoID int64 `json:"photo_id"`
}

// EncodePayload marshals a payload variant for storage. The variants
// are plain structs, so a marshal failure is a programming error.
func EncodePayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("inventory: encode event payload: %v", err))
	}
	return data
}

// DecodePayload returns the typed payload variant for the event's type.
func (e Event) DecodePayload() (any, error) {
	var v any
	switch e.Type {
	case EventDollCreated:
		v = &DollCreatedPayload{}
	case EventDollRenamed:
		v = &DollRenamedPayload{}
	case EventDollMoved:
		v = &DollMovedPayload{}
	case EventDollDeleted:
		v = &DollDeletedPayload{}
	case EventPhotoAdded:
		v = &PhotoAddedPayload{}
	case EventPhotoSetPrimary:
		v = &PhotoSetPrimaryPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return v, nil
}

// Summary renders the event as a human-readable before/after line
// without consulting current state.
func (e Event) Summary() string {
	p, err := e.DecodePayload()
	if err != nil {
		return e.Type
	}
	switch v := p.(type) {
	case *DollCreatedPayload:
		return fmt.Sprintf("created %q in %s", v.Name, v.Container)
	case *DollRenamedPayload:
		return fmt.Sprintf("renamed %q to %q", v.OldName, v.NewName)
	case *DollMovedPayload:
		return fmt.Sprintf("moved from %s to %s", v.OldContainer, v.NewContainer)
	case *DollDeletedPayload:
		return fmt.Sprintf("deleted %q", v.Name)
	case *PhotoAddedPayload:
		return fmt.Sprintf("added photo %d", v.PhotoID)
	case *PhotoSetPrimaryPayload:
		return fmt.Sprintf("set photo %d as primary", v.PhotoID)
	}
	return e.Type
}
