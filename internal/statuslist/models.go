package statuslist

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// ListBytes is the size of one status list bitstring.
	ListBytes = 16 * 1024
	// Capacity is the number of credential slots in one list.
	Capacity = ListBytes * 8
	// MaxIndex is the highest addressable slot.
	MaxIndex = Capacity - 1

	EntryType     = "StatusList2021Entry"
	PurposeRevoke = "revocation"
)

// List is one revocation bitstring. CurrentIndex is the last slot handed out.
type List struct {
	ID           int64
	Content      []byte
	CurrentIndex int
	CreatedAt    time.Time
}

// Reservation is a slot handed to exactly one credential.
type Reservation struct {
	ListID int64 `json:"list_id"`
	Index  int   `json:"index"`
}

// Entry is the credentialStatus object embedded in an issued credential.
type Entry struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	StatusPurpose        string `json:"statusPurpose"`
	StatusListIndex      string `json:"statusListIndex"`
	StatusListCredential string `json:"statusListCredential"`
}

// NewContent returns an all-zero bitstring.
func NewContent() []byte {
	return make([]byte, ListBytes)
}

// ValidIndex reports whether i addresses a slot of a list.
func ValidIndex(i int) bool {
	return i >= 0 && i <= MaxIndex
}

// ListURL is the public location of a rendered list.
func ListURL(baseURL string, listID int64) string {
	return fmt.Sprintf("%s/credentials/status/list/%d", baseURL, listID)
}

// Entry builds the credentialStatus object pointing at this reservation.
func (r Reservation) Entry(baseURL string) Entry {
	listURL := ListURL(baseURL, r.ListID)
	index := strconv.Itoa(r.Index)
	return Entry{
		ID:                   listURL + "#" + index,
		Type:                 EntryType,
		StatusPurpose:        PurposeRevoke,
		StatusListIndex:      index,
		StatusListCredential: listURL,
	}
}
