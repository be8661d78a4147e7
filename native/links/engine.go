package links

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"revenueos/core/events"
)

var (
	// ErrNilState indicates the engine was used before a state backend was
	// configured.
	ErrNilState = errors.New("links engine: state not configured")
	// ErrInvalidPrice indicates a zero or negative price.
	ErrInvalidPrice = errors.New("links engine: price must be positive")
	// ErrInvalidRoyalty indicates a royalty above the 3000 bps cap.
	ErrInvalidRoyalty = errors.New("links engine: royalty exceeds cap")
	// ErrEmptyContent indicates a link without an encrypted content blob.
	ErrEmptyContent = errors.New("links engine: encrypted content required")
	// ErrLinkNotFound indicates the requested link id was never assigned.
	ErrLinkNotFound = errors.New("links engine: link not found")
	// ErrAlreadyPurchased indicates the buyer already holds access. Callers
	// should treat this as success-adjacent and proceed to decryption.
	ErrAlreadyPurchased = errors.New("links engine: buyer already purchased link")
	// ErrInsufficientFunds indicates the buyer balance does not cover the price.
	ErrInsufficientFunds = errors.New("links engine: insufficient balance")
	// ErrUnauthorized indicates the caller does not hold resale rights.
	ErrUnauthorized = errors.New("links engine: caller is not the rights holder")
	// ErrLinkIDRaced indicates the predicted link id was claimed by a
	// concurrent creation before the caller's publish landed.
	ErrLinkIDRaced = errors.New("links engine: predicted link id no longer available")
	// ErrVaultNotSet indicates the custody vault account was not configured.
	ErrVaultNotSet = errors.New("links engine: custody vault not configured")
	// ErrVaultUnderfunded indicates custody does not cover a withdrawal, which
	// can only happen if state was tampered with out of band.
	ErrVaultUnderfunded = errors.New("links engine: custody vault underfunded")
)

// EngineState exposes the persistence the ledger engine requires.
type EngineState interface {
	LinksNextID() (uint64, error)
	LinksSetNextID(id uint64) error
	LinkGet(id uint64) (*Link, bool, error)
	LinkPut(link *Link) error
	LinksByCreator(creator [20]byte) ([]uint64, error)
	LinksAppendToCreator(creator [20]byte, id uint64) error
	PurchaseGet(id uint64, buyer [20]byte) (bool, error)
	PurchasePut(id uint64, buyer [20]byte) error
	BalanceGet(identity [20]byte) (*big.Int, error)
	BalancePut(identity [20]byte, amount *big.Int) error
	GetAccount(addr []byte) (*Account, error)
	PutAccount(addr []byte, account *Account) error
}

// Engine is the authoritative monetization ledger: link creation, purchase and
// resale settlement, royalty accounting and withdrawable balances. All
// mutating operations are serialized against one another, which is what makes
// the LinksNextID prediction read meaningful for callers binding keys to the
// next identifier.
type Engine struct {
	mu      sync.Mutex
	state   EngineState
	emitter events.Emitter
	nowFn   func() int64
	vault   [20]byte
}

// NewEngine constructs a ledger engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetVault configures the custody account holding funds between purchase and
// withdrawal.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// NextLinkID returns the identifier the next successful CreateLink will
// assign, without mutating state. Identifiers start at 1 and increase by one
// per creation.
func (e *Engine) NextLinkID() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextID()
}

func (e *Engine) nextID() (uint64, error) {
	next, err := e.state.LinksNextID()
	if err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	return next, nil
}

// CreateLink validates and stores a new link, assigning the next sequential
// identifier. When expectedID is non-zero the creation only succeeds if the
// ledger is still about to assign that id; a mismatch fails with ErrLinkIDRaced
// so the caller can re-bind the encryption key to the real identifier instead
// of publishing content locked to the wrong one.
func (e *Engine) CreateLink(creator [20]byte, price *big.Int, title string, encryptedContent string, royaltyBps uint32, expectedID uint64) (*Link, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.nextID()
	if err != nil {
		return nil, err
	}
	if expectedID != 0 && expectedID != next {
		return nil, ErrLinkIDRaced
	}
	link, err := SanitizeLink(&Link{
		ID:               next,
		Creator:          creator,
		RightsHolder:     creator,
		Price:            price,
		Title:            title,
		EncryptedContent: encryptedContent,
		TotalEarned:      big.NewInt(0),
		RoyaltyBps:       royaltyBps,
		CreatedAt:        e.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := e.state.LinkPut(link); err != nil {
		return nil, err
	}
	if err := e.state.LinksAppendToCreator(creator, link.ID); err != nil {
		return nil, err
	}
	if err := e.state.LinksSetNextID(next + 1); err != nil {
		return nil, err
	}
	e.emit(LinkCreatedEvent(link))
	return link.Clone(), nil
}

// BuyLink settles a purchase: it moves the price from the buyer's account into
// custody, splits the proceeds between the current rights holder and the
// original creator's royalty track, records the purchase and hands resale
// rights to the buyer. A second purchase by the same buyer fails with
// ErrAlreadyPurchased before any funds move.
func (e *Engine) BuyLink(buyer [20]byte, linkID uint64) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if isZeroAddress(e.vault) {
		return nil, ErrVaultNotSet
	}
	link, ok, err := e.state.LinkGet(linkID)
	if err != nil {
		return nil, err
	}
	if !ok || link == nil {
		return nil, ErrLinkNotFound
	}
	purchased, err := e.state.PurchaseGet(linkID, buyer)
	if err != nil {
		return nil, err
	}
	if purchased {
		return nil, ErrAlreadyPurchased
	}

	seller := link.RightsHolder
	primary := seller == link.Creator
	royaltyShare, sellerShare, err := SplitProceeds(link.Price, link.RoyaltyBps, primary)
	if err != nil {
		return nil, err
	}

	buyerAccount, err := e.state.GetAccount(buyer[:])
	if err != nil {
		return nil, err
	}
	buyerAccount = ensureAccount(buyerAccount)
	if buyerAccount.Balance.Cmp(link.Price) < 0 {
		return nil, ErrInsufficientFunds
	}
	buyerAccount.Balance = new(big.Int).Sub(buyerAccount.Balance, link.Price)
	vaultAccount, err := e.state.GetAccount(e.vault[:])
	if err != nil {
		return nil, err
	}
	vaultAccount = ensureAccount(vaultAccount)
	vaultAccount.Balance = new(big.Int).Add(vaultAccount.Balance, link.Price)
	if err := e.state.PutAccount(buyer[:], buyerAccount); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(e.vault[:], vaultAccount); err != nil {
		return nil, err
	}

	if err := e.credit(seller, sellerShare); err != nil {
		return nil, err
	}
	if royaltyShare.Sign() > 0 {
		if err := e.credit(link.Creator, royaltyShare); err != nil {
			return nil, err
		}
	}

	if err := e.state.PurchasePut(linkID, buyer); err != nil {
		return nil, err
	}
	link.SoldCount++
	// TotalEarned tracks only what the original creator earns from this link:
	// the full price on a primary sale, the royalty share on a resale.
	if primary {
		link.TotalEarned = new(big.Int).Add(link.TotalEarned, link.Price)
	} else {
		link.TotalEarned = new(big.Int).Add(link.TotalEarned, royaltyShare)
	}
	link.RightsHolder = buyer
	if err := e.state.LinkPut(link); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ID:             uuid.NewString(),
		LinkID:         linkID,
		Buyer:          buyer,
		Seller:         seller,
		Price:          newBigInt(link.Price),
		RoyaltyShare:   royaltyShare,
		SellerProceeds: sellerShare,
		PrimarySale:    primary,
		PurchasedAt:    e.now(),
	}
	e.emit(LinkPurchasedEvent(receipt))
	return receipt, nil
}

func (e *Engine) credit(identity [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	balance, err := e.state.BalanceGet(identity)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	return e.state.BalancePut(identity, new(big.Int).Add(balance, amount))
}

// SetResalePrice updates the listing price. Only the current rights holder —
// the creator until the first purchase, then the most recent buyer — may call
// it.
func (e *Engine) SetResalePrice(caller [20]byte, linkID uint64, newPrice *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if newPrice == nil || newPrice.Sign() <= 0 {
		return ErrInvalidPrice
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	link, ok, err := e.state.LinkGet(linkID)
	if err != nil {
		return err
	}
	if !ok || link == nil {
		return ErrLinkNotFound
	}
	if link.RightsHolder != caller {
		return ErrUnauthorized
	}
	link.Price = new(big.Int).Set(newPrice)
	if err := e.state.LinkPut(link); err != nil {
		return err
	}
	e.emit(LinkRepricedEvent(link, caller))
	return nil
}

// WithdrawEarnings sweeps the identity's full withdrawable balance out of
// custody into its spendable account and resets the balance to zero. A zero
// balance is a zero-amount success, not an error.
func (e *Engine) WithdrawEarnings(identity [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	balance, err := e.state.BalanceGet(identity)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if isZeroAddress(e.vault) {
		return nil, ErrVaultNotSet
	}
	vaultAccount, err := e.state.GetAccount(e.vault[:])
	if err != nil {
		return nil, err
	}
	vaultAccount = ensureAccount(vaultAccount)
	if vaultAccount.Balance.Cmp(balance) < 0 {
		return nil, ErrVaultUnderfunded
	}
	vaultAccount.Balance = new(big.Int).Sub(vaultAccount.Balance, balance)
	account, err := e.state.GetAccount(identity[:])
	if err != nil {
		return nil, err
	}
	account = ensureAccount(account)
	account.Balance = new(big.Int).Add(account.Balance, balance)
	if err := e.state.PutAccount(e.vault[:], vaultAccount); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(identity[:], account); err != nil {
		return nil, err
	}
	if err := e.state.BalancePut(identity, big.NewInt(0)); err != nil {
		return nil, err
	}
	withdrawn := newBigInt(balance)
	e.emit(EarningsWithdrawnEvent(identity, withdrawn.String()))
	return withdrawn, nil
}

// GetLink returns the stored link without mutating state.
func (e *Engine) GetLink(linkID uint64) (*Link, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	link, ok, err := e.state.LinkGet(linkID)
	if err != nil {
		return nil, err
	}
	if !ok || link == nil {
		return nil, ErrLinkNotFound
	}
	return link.Clone(), nil
}

// LinksByCreator returns the identifiers of every link the creator published,
// in creation order.
func (e *Engine) LinksByCreator(creator [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	ids, err := e.state.LinksByCreator(creator)
	if err != nil {
		return nil, err
	}
	return append([]uint64(nil), ids...), nil
}

// HasPurchased reports whether the identity holds a purchase record for the
// link. This is the only authorization source for access; key caches are
// advisory.
func (e *Engine) HasPurchased(linkID uint64, identity [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	return e.state.PurchaseGet(linkID, identity)
}

// BalanceOf returns the identity's current withdrawable balance.
func (e *Engine) BalanceOf(identity [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	balance, err := e.state.BalanceGet(identity)
	if err != nil {
		return nil, err
	}
	return newBigInt(balance), nil
}
