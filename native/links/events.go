package links

import (
	"encoding/hex"
	"strconv"

	"revenueos/core/events"
)

const (
	// EventTypeLinkCreated is emitted when a creator publishes a new link.
	EventTypeLinkCreated = "links.created"
	// EventTypeLinkPurchased is emitted when a buyer settles a purchase.
	EventTypeLinkPurchased = "links.purchased"
	// EventTypeLinkRepriced is emitted when the rights holder changes the
	// resale price.
	EventTypeLinkRepriced = "links.repriced"
	// EventTypeEarningsWithdrawn is emitted when a balance is swept out of
	// custody.
	EventTypeEarningsWithdrawn = "links.withdrawn"
)

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// LinkCreatedEvent returns the canonical payload for a newly published link.
func LinkCreatedEvent(l *Link) *events.Payload {
	return &events.Payload{
		Type: EventTypeLinkCreated,
		Attributes: map[string]string{
			"linkId":     strconv.FormatUint(l.ID, 10),
			"creator":    hexAddr(l.Creator),
			"price":      l.Price.String(),
			"royaltyBps": strconv.FormatUint(uint64(l.RoyaltyBps), 10),
		},
	}
}

// LinkPurchasedEvent returns the canonical payload for a settled purchase.
func LinkPurchasedEvent(r *Receipt) *events.Payload {
	return &events.Payload{
		Type: EventTypeLinkPurchased,
		Attributes: map[string]string{
			"linkId":         strconv.FormatUint(r.LinkID, 10),
			"buyer":          hexAddr(r.Buyer),
			"seller":         hexAddr(r.Seller),
			"price":          r.Price.String(),
			"royaltyShare":   r.RoyaltyShare.String(),
			"sellerProceeds": r.SellerProceeds.String(),
			"primary":        strconv.FormatBool(r.PrimarySale),
		},
	}
}

// LinkRepricedEvent returns the canonical payload for a resale price change.
func LinkRepricedEvent(l *Link, caller [20]byte) *events.Payload {
	return &events.Payload{
		Type: EventTypeLinkRepriced,
		Attributes: map[string]string{
			"linkId": strconv.FormatUint(l.ID, 10),
			"caller": hexAddr(caller),
			"price":  l.Price.String(),
		},
	}
}

// EarningsWithdrawnEvent returns the canonical payload for a balance sweep.
func EarningsWithdrawnEvent(identity [20]byte, amount string) *events.Payload {
	return &events.Payload{
		Type: EventTypeEarningsWithdrawn,
		Attributes: map[string]string{
			"identity": hexAddr(identity),
			"amount":   amount,
		},
	}
}
