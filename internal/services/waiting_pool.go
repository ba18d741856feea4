package services

import (
	"encoding/json"
	"time"

	"truth-dare-backend/internal/models"
)

// PairingOrder selects which waiting user DequeueAny hands out
type PairingOrder string

const (
	// PairLIFO pairs with the most recently queued user
	PairLIFO PairingOrder = "lifo"
	// PairFIFO pairs with the longest waiting user
	PairFIFO PairingOrder = "fifo"
)

// WaitingPool holds users looking for a partner, in arrival order.
// It is not safe for concurrent use; TurnCoordinator serialises access.
type WaitingPool struct {
	entries []models.WaitingEntry
	order   PairingOrder
	now     func() time.Time
}

// NewWaitingPool creates an empty pool. An unknown order falls back to LIFO.
func NewWaitingPool(order PairingOrder) *WaitingPool {
	if order != PairFIFO {
		order = PairLIFO
	}
	return &WaitingPool{
		order: order,
		now:   time.Now,
	}
}

// Enqueue adds userID to the pool. A previous entry for the same user is
// replaced, so the user moves to the most recent position.
func (p *WaitingPool) Enqueue(userID, channelRef string, preferences json.RawMessage) models.WaitingEntry {
	p.Remove(userID)
	entry := models.WaitingEntry{
		UserID:      userID,
		JoinedAt:    p.now().UTC(),
		ChannelRef:  channelRef,
		Preferences: preferences,
	}
	p.entries = append(p.entries, entry)
	return entry
}

// DequeueAny removes and returns the next partner according to the pairing order
func (p *WaitingPool) DequeueAny() (models.WaitingEntry, bool) {
	if len(p.entries) == 0 {
		return models.WaitingEntry{}, false
	}

	var entry models.WaitingEntry
	if p.order == PairFIFO {
		entry = p.entries[0]
		p.entries = append(p.entries[:0], p.entries[1:]...)
	} else {
		last := len(p.entries) - 1
		entry = p.entries[last]
		p.entries = p.entries[:last]
	}
	return entry, true
}

// Remove deletes the entry for userID and reports whether one existed
func (p *WaitingPool) Remove(userID string) bool {
	i := p.indexOf(userID)
	if i < 0 {
		return false
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	return true
}

// Entry returns the waiting entry for userID
func (p *WaitingPool) Entry(userID string) (models.WaitingEntry, bool) {
	i := p.indexOf(userID)
	if i < 0 {
		return models.WaitingEntry{}, false
	}
	return p.entries[i], true
}

// Rebind points the waiting entry of userID at a new channel
func (p *WaitingPool) Rebind(userID, channelRef string) bool {
	i := p.indexOf(userID)
	if i < 0 {
		return false
	}
	p.entries[i].ChannelRef = channelRef
	return true
}

// Contains reports whether userID is waiting
func (p *WaitingPool) Contains(userID string) bool {
	return p.indexOf(userID) >= 0
}

// Size returns the number of waiting users
func (p *WaitingPool) Size() int {
	return len(p.entries)
}

func (p *WaitingPool) indexOf(userID string) int {
	for i := range p.entries {
		if p.entries[i].UserID == userID {
			return i
		}
	}
	return -1
}
