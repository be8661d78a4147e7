package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"revenueos/native/links"
	"revenueos/storage"
)

// ErrMalformedRecord indicates a stored record failed to decode. The decode
// boundary lives here so partial or corrupt fields never propagate into the
// engine as zero values.
var ErrMalformedRecord = errors.New("state: malformed record")

const (
	keyNextLinkID     = "links/next"
	prefixLink        = "links/link/"
	prefixCreatorSet  = "links/creator/"
	prefixPurchase    = "links/purchase/"
	prefixBalance     = "links/balance/"
	prefixAccount     = "accounts/"
	purchaseSeparator = "/"
)

// Manager persists the ledger over a generic key-value database, encoding one
// JSON record per key. It implements links.EngineState.
type Manager struct {
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// storedLink is the single typed decoding boundary for link records. Amounts
// and addresses travel as strings so a truncated or hand-edited record fails
// decoding loudly instead of yielding partial fields.
type storedLink struct {
	ID               uint64 `json:"id"`
	Creator          string `json:"creator"`
	RightsHolder     string `json:"rightsHolder"`
	Price            string `json:"price"`
	Title            string `json:"title"`
	EncryptedContent string `json:"encryptedContent"`
	SoldCount        uint64 `json:"soldCount"`
	TotalEarned      string `json:"totalEarned"`
	RoyaltyBps       uint32 `json:"royaltyBps"`
	CreatedAt        int64  `json:"createdAt"`
}

type storedAccount struct {
	Balance string `json:"balance"`
}

func encodeAddr(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func decodeAddr(s string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(out) {
		return out, fmt.Errorf("%w: bad address %q", ErrMalformedRecord, s)
	}
	copy(out[:], raw)
	return out, nil
}

func decodeAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad amount %q", ErrMalformedRecord, s)
	}
	return amount, nil
}

func encodeLink(l *links.Link) ([]byte, error) {
	rec := storedLink{
		ID:               l.ID,
		Creator:          encodeAddr(l.Creator),
		RightsHolder:     encodeAddr(l.RightsHolder),
		Price:            l.Price.String(),
		Title:            l.Title,
		EncryptedContent: l.EncryptedContent,
		SoldCount:        l.SoldCount,
		TotalEarned:      l.TotalEarned.String(),
		RoyaltyBps:       l.RoyaltyBps,
		CreatedAt:        l.CreatedAt,
	}
	return json.Marshal(rec)
}

func decodeLink(raw []byte) (*links.Link, error) {
	var rec storedLink
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	creator, err := decodeAddr(rec.Creator)
	if err != nil {
		return nil, err
	}
	holder, err := decodeAddr(rec.RightsHolder)
	if err != nil {
		return nil, err
	}
	price, err := decodeAmount(rec.Price)
	if err != nil {
		return nil, err
	}
	earned, err := decodeAmount(rec.TotalEarned)
	if err != nil {
		return nil, err
	}
	return &links.Link{
		ID:               rec.ID,
		Creator:          creator,
		RightsHolder:     holder,
		Price:            price,
		Title:            rec.Title,
		EncryptedContent: rec.EncryptedContent,
		SoldCount:        rec.SoldCount,
		TotalEarned:      earned,
		RoyaltyBps:       rec.RoyaltyBps,
		CreatedAt:        rec.CreatedAt,
	}, nil
}

func linkKey(id uint64) []byte {
	return []byte(prefixLink + strconv.FormatUint(id, 10))
}

// LinksNextID returns the next identifier to assign, zero when none was stored
// yet (the engine treats zero as "start at 1").
func (m *Manager) LinksNextID() (uint64, error) {
	raw, err := m.db.Get([]byte(keyNextLinkID))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	next, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id counter %q", ErrMalformedRecord, raw)
	}
	return next, nil
}

func (m *Manager) LinksSetNextID(id uint64) error {
	return m.db.Put([]byte(keyNextLinkID), []byte(strconv.FormatUint(id, 10)))
}

func (m *Manager) LinkGet(id uint64) (*links.Link, bool, error) {
	raw, err := m.db.Get(linkKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	link, err := decodeLink(raw)
	if err != nil {
		return nil, false, err
	}
	return link, true, nil
}

func (m *Manager) LinkPut(link *links.Link) error {
	if link == nil {
		return nil
	}
	raw, err := encodeLink(link)
	if err != nil {
		return err
	}
	return m.db.Put(linkKey(link.ID), raw)
}

func (m *Manager) LinksByCreator(creator [20]byte) ([]uint64, error) {
	raw, err := m.db.Get([]byte(prefixCreatorSet + encodeAddr(creator)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return ids, nil
}

func (m *Manager) LinksAppendToCreator(creator [20]byte, id uint64) error {
	ids, err := m.LinksByCreator(creator)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return m.db.Put([]byte(prefixCreatorSet+encodeAddr(creator)), raw)
}

func purchaseKey(id uint64, buyer [20]byte) []byte {
	return []byte(prefixPurchase + strconv.FormatUint(id, 10) + purchaseSeparator + encodeAddr(buyer))
}

func (m *Manager) PurchaseGet(id uint64, buyer [20]byte) (bool, error) {
	return m.db.Has(purchaseKey(id, buyer))
}

func (m *Manager) PurchasePut(id uint64, buyer [20]byte) error {
	return m.db.Put(purchaseKey(id, buyer), []byte{0x01})
}

func (m *Manager) BalanceGet(identity [20]byte) (*big.Int, error) {
	raw, err := m.db.Get([]byte(prefixBalance + encodeAddr(identity)))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAmount(string(raw))
}

func (m *Manager) BalancePut(identity [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.db.Put([]byte(prefixBalance+encodeAddr(identity)), []byte(amount.String()))
}

func (m *Manager) GetAccount(addr []byte) (*links.Account, error) {
	raw, err := m.db.Get(append([]byte(prefixAccount), addr...))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec storedAccount
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	balance, err := decodeAmount(rec.Balance)
	if err != nil {
		return nil, err
	}
	return &links.Account{Balance: balance}, nil
}

func (m *Manager) PutAccount(addr []byte, account *links.Account) error {
	if account == nil {
		account = &links.Account{Balance: big.NewInt(0)}
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	raw, err := json.Marshal(storedAccount{Balance: balance.String()})
	if err != nil {
		return err
	}
	return m.db.Put(append([]byte(prefixAccount), addr...), raw)
}
