package state

import (
	"errors"
	"math/big"
	"testing"

	"revenueos/native/links"
	"revenueos/storage"
)

func testAddr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func TestNextIDRoundTrip(t *testing.T) {
	m := newTestManager()

	next, err := m.LinksNextID()
	if err != nil {
		t.Fatalf("fresh next id: %v", err)
	}
	if next != 0 {
		t.Fatalf("fresh counter = %d, want 0", next)
	}
	if err := m.LinksSetNextID(42); err != nil {
		t.Fatalf("set next id: %v", err)
	}
	next, err = m.LinksNextID()
	if err != nil {
		t.Fatalf("read next id: %v", err)
	}
	if next != 42 {
		t.Fatalf("next id = %d, want 42", next)
	}
}

func TestLinkRoundTrip(t *testing.T) {
	m := newTestManager()
	link := &links.Link{
		ID:               7,
		Creator:          testAddr(0x01),
		RightsHolder:     testAddr(0x02),
		Price:            big.NewInt(2_000_000),
		Title:            "AI Alpha Report",
		EncryptedContent: "g1:c2VhbGVk",
		SoldCount:        3,
		TotalEarned:      big.NewInt(6_000_000),
		RoyaltyBps:       1000,
		CreatedAt:        1_700_000_000,
	}
	if err := m.LinkPut(link); err != nil {
		t.Fatalf("put link: %v", err)
	}

	stored, ok, err := m.LinkGet(7)
	if err != nil {
		t.Fatalf("get link: %v", err)
	}
	if !ok {
		t.Fatalf("stored link not found")
	}
	if stored.ID != link.ID || stored.Creator != link.Creator || stored.RightsHolder != link.RightsHolder {
		t.Fatalf("identity fields corrupted: %+v", stored)
	}
	if stored.Price.Cmp(link.Price) != 0 || stored.TotalEarned.Cmp(link.TotalEarned) != 0 {
		t.Fatalf("amount fields corrupted: %+v", stored)
	}
	if stored.Title != link.Title || stored.EncryptedContent != link.EncryptedContent {
		t.Fatalf("content fields corrupted: %+v", stored)
	}
	if stored.SoldCount != 3 || stored.RoyaltyBps != 1000 || stored.CreatedAt != 1_700_000_000 {
		t.Fatalf("counter fields corrupted: %+v", stored)
	}

	if _, ok, err := m.LinkGet(99); err != nil || ok {
		t.Fatalf("unknown link: ok=%v err=%v", ok, err)
	}
}

func TestLinkGetMalformedRecord(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)

	cases := map[string]string{
		"not json":    `{broken`,
		"bad address": `{"id":1,"creator":"zz","rightsHolder":"zz","price":"1","totalEarned":"0"}`,
		"bad amount":  `{"id":1,"creator":"0000000000000000000000000000000000000001","rightsHolder":"0000000000000000000000000000000000000001","price":"ten","totalEarned":"0"}`,
	}
	for name, raw := range cases {
		if err := db.Put([]byte("links/link/1"), []byte(raw)); err != nil {
			t.Fatalf("%s: seed: %v", name, err)
		}
		if _, _, err := m.LinkGet(1); !errors.Is(err, ErrMalformedRecord) {
			t.Fatalf("%s: err = %v, want ErrMalformedRecord", name, err)
		}
	}
}

func TestCreatorIndex(t *testing.T) {
	m := newTestManager()
	creator := testAddr(0x01)

	ids, err := m.LinksByCreator(creator)
	if err != nil {
		t.Fatalf("fresh index: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("fresh index not empty: %v", ids)
	}
	for _, id := range []uint64{1, 5, 9} {
		if err := m.LinksAppendToCreator(creator, id); err != nil {
			t.Fatalf("append %d: %v", id, err)
		}
	}
	ids, err = m.LinksByCreator(creator)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 5 || ids[2] != 9 {
		t.Fatalf("index out of order: %v", ids)
	}
}

func TestPurchaseRecords(t *testing.T) {
	m := newTestManager()
	buyer := testAddr(0x02)

	purchased, err := m.PurchaseGet(1, buyer)
	if err != nil || purchased {
		t.Fatalf("fresh record: purchased=%v err=%v", purchased, err)
	}
	if err := m.PurchasePut(1, buyer); err != nil {
		t.Fatalf("put purchase: %v", err)
	}
	purchased, err = m.PurchaseGet(1, buyer)
	if err != nil || !purchased {
		t.Fatalf("stored record: purchased=%v err=%v", purchased, err)
	}
	// Other identities and other links stay unaffected.
	if purchased, _ := m.PurchaseGet(1, testAddr(0x03)); purchased {
		t.Fatalf("record leaked to another identity")
	}
	if purchased, _ := m.PurchaseGet(2, buyer); purchased {
		t.Fatalf("record leaked to another link")
	}
}

func TestBalanceRoundTrip(t *testing.T) {
	m := newTestManager()
	identity := testAddr(0x01)

	balance, err := m.BalanceGet(identity)
	if err != nil {
		t.Fatalf("fresh balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("fresh balance = %s, want 0", balance)
	}
	if err := m.BalancePut(identity, big.NewInt(123_456)); err != nil {
		t.Fatalf("put balance: %v", err)
	}
	balance, err = m.BalanceGet(identity)
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	if balance.Cmp(big.NewInt(123_456)) != 0 {
		t.Fatalf("balance = %s, want 123456", balance)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager()
	addr := testAddr(0x01)

	account, err := m.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("fresh account: %v", err)
	}
	if account != nil {
		t.Fatalf("fresh account should be nil, got %+v", account)
	}
	if err := m.PutAccount(addr[:], &links.Account{Balance: big.NewInt(987)}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	account, err = m.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("read account: %v", err)
	}
	if account == nil || account.Balance.Cmp(big.NewInt(987)) != 0 {
		t.Fatalf("account = %+v, want balance 987", account)
	}
}

// The manager is the engine's real backend; run one full purchase through the
// pair to catch encoding drift the per-record tests miss.
func TestManagerBacksEngine(t *testing.T) {
	m := newTestManager()
	engine := links.NewEngine()
	engine.SetState(m)
	engine.SetVault(testAddr(0xAA))

	creator := testAddr(0x01)
	buyer := testAddr(0x02)
	if err := m.PutAccount(buyer[:], &links.Account{Balance: big.NewInt(1_000)}); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	link, err := engine.CreateLink(creator, big.NewInt(400), "t", "g1:blob", 500, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.BuyLink(buyer, link.ID); err != nil {
		t.Fatalf("buy: %v", err)
	}
	withdrawn, err := engine.WithdrawEarnings(creator)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("withdrawn = %s, want 400", withdrawn)
	}
	account, err := m.GetAccount(creator[:])
	if err != nil || account == nil {
		t.Fatalf("creator account missing: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("creator account = %s, want 400", account.Balance)
	}
}
