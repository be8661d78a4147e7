// Package marketplace wraps the ledger, the key protocol and the key cache
// into the business actions a client surface calls: publish, buy, unlock,
// reprice, withdraw. Each action owns its failure modes; nothing here is
// fatal beyond the single requested operation.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"revenueos/access"
	"revenueos/native/links"
)

var (
	// ErrPublishRaced indicates repeated identifier races exhausted the retry
	// budget; the caller should resubmit the draft.
	ErrPublishRaced = errors.New("marketplace: link id contention, publish again")
	// ErrKeyRequired indicates content could not be unlocked with any
	// available key and no manual key was supplied.
	ErrKeyRequired = errors.New("marketplace: decryption key required")
	// ErrNotEntitled indicates the identity holds no purchase record for the
	// link and is not its creator.
	ErrNotEntitled = errors.New("marketplace: identity has not purchased link")
	// ErrBadShareURL indicates a share URL that does not match the
	// <origin>/l/<id>#key=<key> shape.
	ErrBadShareURL = errors.New("marketplace: malformed share url")
)

// publishRetryBudget bounds re-derivation when a concurrent creator claims the
// predicted identifier between the prediction read and the create call.
const publishRetryBudget = 3

// Registry is the ledger surface the facade orchestrates. *links.Engine
// satisfies it.
type Registry interface {
	NextLinkID() (uint64, error)
	CreateLink(creator [20]byte, price *big.Int, title string, encryptedContent string, royaltyBps uint32, expectedID uint64) (*links.Link, error)
	BuyLink(buyer [20]byte, linkID uint64) (*links.Receipt, error)
	SetResalePrice(caller [20]byte, linkID uint64, newPrice *big.Int) error
	WithdrawEarnings(identity [20]byte) (*big.Int, error)
	GetLink(linkID uint64) (*links.Link, error)
	LinksByCreator(creator [20]byte) ([]uint64, error)
	HasPurchased(linkID uint64, identity [20]byte) (bool, error)
	BalanceOf(identity [20]byte) (*big.Int, error)
}

// Facade is the boundary the presentation layer calls.
type Facade struct {
	registry Registry
	cache    *access.KeyCache
	origin   string
	log      *slog.Logger
}

// New constructs a facade. The origin is the site prefix share URLs are built
// against, without a trailing slash.
func New(registry Registry, cache *access.KeyCache, origin string, log *slog.Logger) *Facade {
	if log == nil {
		log = slog.Default()
	}
	return &Facade{
		registry: registry,
		cache:    cache,
		origin:   strings.TrimRight(strings.TrimSpace(origin), "/"),
		log:      log,
	}
}

// Draft carries the creator-supplied fields of a new link.
type Draft struct {
	Title      string
	Price      *big.Int
	Content    string
	RoyaltyBps uint32
}

// PublishResult reports a finished publication: the stored link, the derived
// key and the share URL the creator hands to buyers out of band.
type PublishResult struct {
	Link     *links.Link
	Key      access.Key
	ShareURL string
}

// Publish runs the create flow: predict the next identifier, derive the key
// bound to it, encrypt the content and create the link pinned to the
// prediction. When a concurrent creation claims the predicted id the ledger
// rejects the create and the whole derivation is repeated against the fresh
// id — content sealed under a key bound to the wrong identifier is never
// published.
func (f *Facade) Publish(ctx context.Context, signer access.Signer, draft Draft) (*PublishResult, error) {
	if signer == nil {
		return nil, access.ErrIdentityUnavailable
	}
	creator := signer.Address().Array()
	for attempt := 0; attempt < publishRetryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		predicted, err := f.registry.NextLinkID()
		if err != nil {
			return nil, err
		}
		key, err := access.DeriveKey(signer, predicted)
		if err != nil {
			return nil, err
		}
		encrypted, err := access.Encrypt(key, draft.Content)
		if err != nil {
			return nil, err
		}
		link, err := f.registry.CreateLink(creator, draft.Price, draft.Title, encrypted, draft.RoyaltyBps, predicted)
		if errors.Is(err, links.ErrLinkIDRaced) {
			f.log.Warn("link id raced, re-deriving", "predicted", predicted, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.cache != nil {
			if err := f.cache.Put(link.ID, key); err != nil {
				f.log.Warn("key cache write failed", "linkId", link.ID, "err", err)
			}
		}
		return &PublishResult{Link: link, Key: key, ShareURL: f.ShareURL(link.ID, key)}, nil
	}
	return nil, ErrPublishRaced
}

// PurchaseOutcome reports a buy. AlreadyOwned marks the success-adjacent path
// where the ledger already holds a purchase record and no payment moved.
type PurchaseOutcome struct {
	Receipt      *links.Receipt
	AlreadyOwned bool
}

// Buy settles a purchase. The purchase record is consulted before payment is
// attempted, so re-submitting after an ambiguous outcome can never charge
// twice; an ErrAlreadyPurchased from the ledger itself is folded into the same
// AlreadyOwned outcome.
func (f *Facade) Buy(ctx context.Context, buyer [20]byte, linkID uint64) (*PurchaseOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owned, err := f.registry.HasPurchased(linkID, buyer)
	if err != nil {
		return nil, err
	}
	if owned {
		return &PurchaseOutcome{AlreadyOwned: true}, nil
	}
	receipt, err := f.registry.BuyLink(buyer, linkID)
	if errors.Is(err, links.ErrAlreadyPurchased) {
		return &PurchaseOutcome{AlreadyOwned: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &PurchaseOutcome{Receipt: receipt}, nil
}

// Unlocked reports a successful decryption.
type Unlocked struct {
	Content string
	IsURL   bool
}

// Unlock recovers the plaintext content reference for an entitled identity.
// Key sources are tried in order — local cache, fresh derivation (creator
// only), manually supplied key — and each is abandoned only on a decryption
// failure, never by denying access on a cache miss. Successful derivations are
// written back to the cache.
func (f *Facade) Unlock(ctx context.Context, signer access.Signer, linkID uint64, manualKey string) (*Unlocked, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if signer == nil {
		return nil, access.ErrIdentityUnavailable
	}
	identity := signer.Address().Array()
	link, err := f.registry.GetLink(linkID)
	if err != nil {
		return nil, err
	}
	purchased, err := f.registry.HasPurchased(linkID, identity)
	if err != nil {
		return nil, err
	}
	if !purchased && link.Creator != identity {
		return nil, ErrNotEntitled
	}

	if f.cache != nil {
		if key, ok := f.cache.Get(linkID); ok {
			if content, err := access.Decrypt(key, link.EncryptedContent); err == nil {
				return &Unlocked{Content: content, IsURL: access.LooksLikeURL(content)}, nil
			}
		}
	}

	// Re-derivation only helps the creator: the key message embeds the
	// creator's identity, so a buyer signing it derives a different key.
	if link.Creator == identity {
		key, err := access.DeriveKey(signer, linkID)
		if err != nil {
			if errors.Is(err, access.ErrUserDeclined) {
				return nil, err
			}
			f.log.Warn("key re-derivation failed", "linkId", linkID, "err", err)
		} else if content, derr := access.Decrypt(key, link.EncryptedContent); derr == nil {
			if f.cache != nil {
				if cerr := f.cache.Put(linkID, key); cerr != nil {
					f.log.Warn("key cache write failed", "linkId", linkID, "err", cerr)
				}
			}
			return &Unlocked{Content: content, IsURL: access.LooksLikeURL(content)}, nil
		}
	}

	if strings.TrimSpace(manualKey) != "" {
		key, err := access.ParseKey(manualKey)
		if err != nil {
			return nil, access.ErrDecryptionFailed
		}
		content, err := access.Decrypt(key, link.EncryptedContent)
		if err != nil {
			return nil, err
		}
		if f.cache != nil {
			if cerr := f.cache.Put(linkID, key); cerr != nil {
				f.log.Warn("key cache write failed", "linkId", linkID, "err", cerr)
			}
		}
		return &Unlocked{Content: content, IsURL: access.LooksLikeURL(content)}, nil
	}
	return nil, ErrKeyRequired
}

// Reprice updates the resale price on behalf of the rights holder.
func (f *Facade) Reprice(ctx context.Context, caller [20]byte, linkID uint64, newPrice *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.registry.SetResalePrice(caller, linkID, newPrice)
}

// Withdraw sweeps the identity's withdrawable balance.
func (f *Facade) Withdraw(ctx context.Context, identity [20]byte) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.registry.WithdrawEarnings(identity)
}

// Links lists the identifiers the creator published.
func (f *Facade) Links(creator [20]byte) ([]uint64, error) {
	return f.registry.LinksByCreator(creator)
}

// Balance returns the identity's withdrawable balance.
func (f *Facade) Balance(identity [20]byte) (*big.Int, error) {
	return f.registry.BalanceOf(identity)
}

// ShareURL renders <origin>/l/<id>#key=<hexkey>. The fragment never reaches a
// server; it exists only in the URL handed to a human.
func (f *Facade) ShareURL(linkID uint64, key access.Key) string {
	return fmt.Sprintf("%s/l/%d#key=%s", f.origin, linkID, key.String())
}

// ParseShareURL extracts the link id and fragment key from a share URL. The
// key may be absent (the creator can share a bare link and supply the key
// separately); a malformed path or fragment fails with ErrBadShareURL.
func ParseShareURL(raw string) (uint64, *access.Key, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return 0, nil, ErrBadShareURL
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 || segments[len(segments)-2] != "l" {
		return 0, nil, ErrBadShareURL
	}
	linkID, err := strconv.ParseUint(segments[len(segments)-1], 10, 64)
	if err != nil || linkID == 0 {
		return 0, nil, ErrBadShareURL
	}
	if parsed.Fragment == "" {
		return linkID, nil, nil
	}
	encoded, ok := strings.CutPrefix(parsed.Fragment, "key=")
	if !ok {
		return 0, nil, ErrBadShareURL
	}
	key, err := access.ParseKey(encoded)
	if err != nil {
		return 0, nil, ErrBadShareURL
	}
	return linkID, &key, nil
}
