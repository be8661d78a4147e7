package links

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxRoyaltyBps caps the resale royalty a creator can attach to a link (30%).
const MaxRoyaltyBps = 3000

// MaxTitleLength bounds the creator-supplied display string.
const MaxTitleLength = 140

// Link is the sellable unit: a priced reference to encrypted content with its
// royalty terms and cumulative sales counters. EncryptedContent is written once
// at creation and never edited in place; publishing different content means
// publishing a new link.
type Link struct {
	ID               uint64   `json:"id"`
	Creator          [20]byte `json:"creator"`
	RightsHolder     [20]byte `json:"rightsHolder"`
	Price            *big.Int `json:"price"`
	Title            string   `json:"title"`
	EncryptedContent string   `json:"encryptedContent"`
	SoldCount        uint64   `json:"soldCount"`
	TotalEarned      *big.Int `json:"totalEarned"`
	RoyaltyBps       uint32   `json:"royaltyBps"`
	CreatedAt        int64    `json:"createdAt"`
}

// Clone returns a deep copy of the link so callers can safely mutate the copy
// without affecting the stored instance.
func (l *Link) Clone() *Link {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if l.TotalEarned != nil {
		clone.TotalEarned = new(big.Int).Set(l.TotalEarned)
	} else {
		clone.TotalEarned = big.NewInt(0)
	}
	return &clone
}

// SanitizeLink validates and normalises the supplied link record, returning a
// cloned instance with non-nil amount fields. The original value is not
// mutated.
func SanitizeLink(l *Link) (*Link, error) {
	if l == nil {
		return nil, fmt.Errorf("nil link")
	}
	clone := l.Clone()
	clone.Title = strings.TrimSpace(clone.Title)
	if len(clone.Title) > MaxTitleLength {
		return nil, fmt.Errorf("link title exceeds %d characters", MaxTitleLength)
	}
	if clone.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if clone.RoyaltyBps > MaxRoyaltyBps {
		return nil, ErrInvalidRoyalty
	}
	if strings.TrimSpace(clone.EncryptedContent) == "" {
		return nil, ErrEmptyContent
	}
	return clone, nil
}

// Account tracks the spendable settlement-currency balance of one identity.
type Account struct {
	Balance *big.Int `json:"balance"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}

// Receipt records the settled money movement of one purchase.
type Receipt struct {
	ID             string   `json:"id"`
	LinkID         uint64   `json:"linkId"`
	Buyer          [20]byte `json:"buyer"`
	Seller         [20]byte `json:"seller"`
	Price          *big.Int `json:"price"`
	RoyaltyShare   *big.Int `json:"royaltyShare"`
	SellerProceeds *big.Int `json:"sellerProceeds"`
	PrimarySale    bool     `json:"primarySale"`
	PurchasedAt    int64    `json:"purchasedAt"`
}
