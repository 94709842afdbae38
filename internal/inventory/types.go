// Package inventory holds the doll inventory domain: entities, the
// event audit trail, and the Service contract implemented by the
// in-memory, SQLite and Postgres stores.
package inventory

import (
	"regexp"
	"strconv"
	"time"
)

// Container is a named storage slot (Home, a numbered Bag, Wishlist, or
// custom). System containers are seeded at first startup and cannot be
// renamed, deactivated or deleted.
type Container struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	IsActive  bool      `json:"is_active"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Doll is the tracked entity. Dolls are soft-deleted: DeletedAt hides
// them from listings but their events stay addressable.
//
// container_id is the canonical placement model. The legacy
// location/bag_number pair is derived from the container name on read
// and never written (see LegacyLocation).
type Doll struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	ContainerID int64      `json:"container_id"`
	Container   string     `json:"container"`
	PurchaseURL string     `json:"purchase_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	DeletedBy   string     `json:"deleted_by,omitempty"`

	// Read-side enrichment, not stored on the doll row.
	PrimaryPhotoPath string `json:"-"`
	PhotosCount      int    `json:"-"`
}

// IsDeleted reports whether the doll is soft-deleted.
func (d Doll) IsDeleted() bool { return d.DeletedAt != nil }

// Photo is an image attached to a doll. At most one photo per doll has
// IsPrimary set; swapping primaries is a single transaction.
type Photo struct {
	ID        int64     `json:"id"`
	DollID    int64     `json:"doll_id"`
	Path      string    `json:"path"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// DollFilter narrows ListDolls.
type DollFilter struct {
	Query          string
	ContainerID    int64
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// EventFilter narrows ListEvents. DollID zero means all dolls.
type EventFilter struct {
	DollID int64
	Limit  int
	Offset int
}

var bagNameRe = regexp.MustCompile(`^Bag ([0-9]+)$`)

// LegacyLocation maps a container name onto the pre-container schema
// view: "Home" is HOME, "Bag N" is BAG with a bag number. Other
// containers have no legacy equivalent and report ok=false.
func LegacyLocation(containerName string) (location string, bagNumber int, ok bool) {
	if containerName == "Home" {
		return "HOME", 0, true
	}
	if m := bagNameRe.FindStringSubmatch(containerName); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", 0, false
		}
		return "BAG", n, true
	}
	return "", 0, false
}
