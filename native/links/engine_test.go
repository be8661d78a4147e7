package links

import (
	"errors"
	"math/big"
	"testing"
)

type mockState struct {
	nextID    uint64
	links     map[uint64]*Link
	byCreator map[[20]byte][]uint64
	purchases map[uint64]map[[20]byte]bool
	balances  map[[20]byte]*big.Int
	accounts  map[string]*Account
}

func newMockState() *mockState {
	return &mockState{
		links:     make(map[uint64]*Link),
		byCreator: make(map[[20]byte][]uint64),
		purchases: make(map[uint64]map[[20]byte]bool),
		balances:  make(map[[20]byte]*big.Int),
		accounts:  make(map[string]*Account),
	}
}

func (m *mockState) LinksNextID() (uint64, error) { return m.nextID, nil }

func (m *mockState) LinksSetNextID(id uint64) error {
	m.nextID = id
	return nil
}

func (m *mockState) LinkGet(id uint64) (*Link, bool, error) {
	link, ok := m.links[id]
	if !ok {
		return nil, false, nil
	}
	return link.Clone(), true, nil
}

func (m *mockState) LinkPut(link *Link) error {
	if link == nil {
		return nil
	}
	m.links[link.ID] = link.Clone()
	return nil
}

func (m *mockState) LinksByCreator(creator [20]byte) ([]uint64, error) {
	return append([]uint64(nil), m.byCreator[creator]...), nil
}

func (m *mockState) LinksAppendToCreator(creator [20]byte, id uint64) error {
	m.byCreator[creator] = append(m.byCreator[creator], id)
	return nil
}

func (m *mockState) PurchaseGet(id uint64, buyer [20]byte) (bool, error) {
	return m.purchases[id][buyer], nil
}

func (m *mockState) PurchasePut(id uint64, buyer [20]byte) error {
	if m.purchases[id] == nil {
		m.purchases[id] = make(map[[20]byte]bool)
	}
	m.purchases[id][buyer] = true
	return nil
}

func (m *mockState) BalanceGet(identity [20]byte) (*big.Int, error) {
	balance, ok := m.balances[identity]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (m *mockState) BalancePut(identity [20]byte, amount *big.Int) error {
	m.balances[identity] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*Account, error) {
	if acc, ok := m.accounts[string(addr)]; ok && acc != nil {
		return acc.Clone(), nil
	}
	return nil, nil
}

func (m *mockState) PutAccount(addr []byte, account *Account) error {
	if account == nil {
		delete(m.accounts, string(addr))
		return nil
	}
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func (m *mockState) setAccount(addr [20]byte, amount int64) {
	m.accounts[string(addr[:])] = &Account{Balance: big.NewInt(amount)}
}

func (m *mockState) account(addr [20]byte) *Account {
	if acc, ok := m.accounts[string(addr[:])]; ok {
		return acc.Clone()
	}
	return &Account{Balance: big.NewInt(0)}
}

func sumBalances(state *mockState, addrs ...[20]byte) *big.Int {
	total := big.NewInt(0)
	for _, addr := range addrs {
		total = new(big.Int).Add(total, state.account(addr).Balance)
	}
	return total
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func newTestEngine(state *mockState) *Engine {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetVault(addr(0xAA))
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine
}

func TestCreateLinkAssignsSequentialIDs(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)

	for i := 1; i <= 5; i++ {
		next, err := engine.NextLinkID()
		if err != nil {
			t.Fatalf("next id query failed: %v", err)
		}
		if next != uint64(i) {
			t.Fatalf("predicted id %d, want %d", next, i)
		}
		link, err := engine.CreateLink(creator, big.NewInt(1), "t", "g1:blob", 0, 0)
		if err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
		if link.ID != uint64(i) {
			t.Fatalf("assigned id %d, want %d", link.ID, i)
		}
	}

	ids, err := engine.LinksByCreator(creator)
	if err != nil {
		t.Fatalf("links by creator failed: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("expected 5 links, got %d", len(ids))
	}
	for i, id := range ids {
		if id != uint64(i+1) {
			t.Fatalf("creator index out of order: %v", ids)
		}
	}
}

func TestCreateLinkValidation(t *testing.T) {
	engine := newTestEngine(newMockState())
	creator := addr(0x01)

	if _, err := engine.CreateLink(creator, big.NewInt(0), "t", "g1:blob", 0, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero price not rejected: %v", err)
	}
	if _, err := engine.CreateLink(creator, big.NewInt(1), "t", "g1:blob", 3001, 0); !errors.Is(err, ErrInvalidRoyalty) {
		t.Fatalf("royalty above cap not rejected: %v", err)
	}
	if _, err := engine.CreateLink(creator, big.NewInt(1), "t", "   ", 0, 0); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("empty content not rejected: %v", err)
	}
	if _, err := engine.CreateLink(creator, big.NewInt(1), "t", "g1:blob", MaxRoyaltyBps, 0); err != nil {
		t.Fatalf("royalty at cap should be accepted: %v", err)
	}
}

func TestCreateLinkExpectedIDRace(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)
	rival := addr(0x02)

	predicted, err := engine.NextLinkID()
	if err != nil {
		t.Fatalf("next id query failed: %v", err)
	}
	if _, err := engine.CreateLink(rival, big.NewInt(1), "rival", "g1:other", 0, 0); err != nil {
		t.Fatalf("rival create failed: %v", err)
	}
	if _, err := engine.CreateLink(creator, big.NewInt(1), "t", "g1:blob", 0, predicted); !errors.Is(err, ErrLinkIDRaced) {
		t.Fatalf("stale prediction not rejected: %v", err)
	}
	// Re-binding to the fresh prediction succeeds.
	fresh, err := engine.NextLinkID()
	if err != nil {
		t.Fatalf("fresh prediction failed: %v", err)
	}
	link, err := engine.CreateLink(creator, big.NewInt(1), "t", "g1:blob", 0, fresh)
	if err != nil {
		t.Fatalf("create with fresh prediction failed: %v", err)
	}
	if link.ID != fresh {
		t.Fatalf("assigned id %d, want %d", link.ID, fresh)
	}
}

func TestPrimarySaleScenario(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	vault := addr(0xAA)
	creator := addr(0x01)
	buyer := addr(0x02)
	state.setAccount(buyer, 5_000_000)

	link, err := engine.CreateLink(creator, big.NewInt(2_000_000), "AI Alpha Report", "g1:blob", 1000, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	initialTotal := sumBalances(state, creator, buyer, vault)

	receipt, err := engine.BuyLink(buyer, link.ID)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if !receipt.PrimarySale {
		t.Fatalf("expected primary sale receipt")
	}
	if receipt.SellerProceeds.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("unexpected seller proceeds: %s", receipt.SellerProceeds)
	}

	stored, err := engine.GetLink(link.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.SoldCount != 1 {
		t.Fatalf("soldCount = %d, want 1", stored.SoldCount)
	}
	if stored.TotalEarned.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("totalEarned = %s, want 2000000", stored.TotalEarned)
	}
	if stored.RightsHolder != buyer {
		t.Fatalf("rights holder not handed to buyer")
	}

	purchased, err := engine.HasPurchased(link.ID, buyer)
	if err != nil || !purchased {
		t.Fatalf("purchase record missing: %v", err)
	}

	balance, err := engine.BalanceOf(creator)
	if err != nil {
		t.Fatalf("balance query failed: %v", err)
	}
	if balance.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("creator balance = %s, want 2000000", balance)
	}

	if got := sumBalances(state, creator, buyer, vault); initialTotal.Cmp(got) != 0 {
		t.Fatalf("total supply changed after buy: want %s got %s", initialTotal, got)
	}
	if got := state.account(vault).Balance; got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("vault custody = %s, want 2000000", got)
	}
}

func TestResaleRoyaltyScenario(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	vault := addr(0xAA)
	creator := addr(0x01)
	buyerA := addr(0x02)
	buyerB := addr(0x03)
	state.setAccount(buyerA, 3_000_000)
	state.setAccount(buyerB, 3_000_000)

	link, err := engine.CreateLink(creator, big.NewInt(2_000_000), "t", "g1:blob", 1000, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := engine.BuyLink(buyerA, link.ID); err != nil {
		t.Fatalf("primary buy failed: %v", err)
	}

	if err := engine.SetResalePrice(buyerA, link.ID, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("reprice failed: %v", err)
	}

	initialTotal := sumBalances(state, creator, buyerA, buyerB, vault)

	receipt, err := engine.BuyLink(buyerB, link.ID)
	if err != nil {
		t.Fatalf("resale buy failed: %v", err)
	}
	if receipt.PrimarySale {
		t.Fatalf("resale flagged as primary")
	}
	if receipt.RoyaltyShare.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("royalty = %s, want 100000", receipt.RoyaltyShare)
	}
	if receipt.SellerProceeds.Cmp(big.NewInt(900_000)) != 0 {
		t.Fatalf("seller proceeds = %s, want 900000", receipt.SellerProceeds)
	}

	creatorBalance, _ := engine.BalanceOf(creator)
	if creatorBalance.Cmp(big.NewInt(2_100_000)) != 0 {
		t.Fatalf("creator balance = %s, want 2100000", creatorBalance)
	}
	sellerBalance, _ := engine.BalanceOf(buyerA)
	if sellerBalance.Cmp(big.NewInt(900_000)) != 0 {
		t.Fatalf("reseller balance = %s, want 900000", sellerBalance)
	}

	stored, _ := engine.GetLink(link.ID)
	if stored.SoldCount != 2 {
		t.Fatalf("soldCount = %d, want 2", stored.SoldCount)
	}
	if stored.TotalEarned.Cmp(big.NewInt(2_100_000)) != 0 {
		t.Fatalf("totalEarned = %s, want 2100000 (primary price + resale royalty)", stored.TotalEarned)
	}

	if got := sumBalances(state, creator, buyerA, buyerB, vault); initialTotal.Cmp(got) != 0 {
		t.Fatalf("total supply changed after resale: want %s got %s", initialTotal, got)
	}
}

func TestBuyLinkIdempotent(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)
	buyer := addr(0x02)
	state.setAccount(buyer, 10)

	link, err := engine.CreateLink(creator, big.NewInt(3), "t", "g1:blob", 500, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := engine.BuyLink(buyer, link.ID); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	if _, err := engine.BuyLink(buyer, link.ID); !errors.Is(err, ErrAlreadyPurchased) {
		t.Fatalf("second buy not guarded: %v", err)
	}

	stored, _ := engine.GetLink(link.ID)
	if stored.SoldCount != 1 {
		t.Fatalf("soldCount = %d after duplicate buy, want 1", stored.SoldCount)
	}
	if got := state.account(buyer).Balance; got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("buyer charged twice: balance %s, want 7", got)
	}
}

func TestBuyLinkFailuresLeaveStateUntouched(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)
	buyer := addr(0x02)
	state.setAccount(buyer, 1)

	if _, err := engine.BuyLink(buyer, 42); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("unknown link not rejected: %v", err)
	}

	link, err := engine.CreateLink(creator, big.NewInt(100), "t", "g1:blob", 0, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := engine.BuyLink(buyer, link.ID); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("underfunded buyer not rejected: %v", err)
	}
	if got := state.account(buyer).Balance; got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("failed buy moved funds: %s", got)
	}
	stored, _ := engine.GetLink(link.ID)
	if stored.SoldCount != 0 {
		t.Fatalf("failed buy recorded a sale")
	}
	if purchased, _ := engine.HasPurchased(link.ID, buyer); purchased {
		t.Fatalf("failed buy recorded a purchase")
	}
}

func TestSetResalePriceAuthorization(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)
	buyer := addr(0x02)
	stranger := addr(0x03)
	state.setAccount(buyer, 100)

	link, err := engine.CreateLink(creator, big.NewInt(10), "t", "g1:blob", 0, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// Creator holds rights until the first purchase.
	if err := engine.SetResalePrice(creator, link.ID, big.NewInt(20)); err != nil {
		t.Fatalf("creator reprice failed: %v", err)
	}
	if err := engine.SetResalePrice(stranger, link.ID, big.NewInt(5)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger reprice not rejected: %v", err)
	}
	if _, err := engine.BuyLink(buyer, link.ID); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if err := engine.SetResalePrice(creator, link.ID, big.NewInt(30)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("creator kept rights after sale: %v", err)
	}
	if err := engine.SetResalePrice(buyer, link.ID, big.NewInt(30)); err != nil {
		t.Fatalf("rights holder reprice failed: %v", err)
	}
	if err := engine.SetResalePrice(buyer, link.ID, big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero reprice not rejected: %v", err)
	}
	stored, _ := engine.GetLink(link.ID)
	if stored.Price.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("price = %s, want 30", stored.Price)
	}
}

func TestWithdrawEarnings(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	vault := addr(0xAA)
	creator := addr(0x01)
	buyer := addr(0x02)
	state.setAccount(buyer, 1_000)

	// Zero balance withdraws zero without error.
	withdrawn, err := engine.WithdrawEarnings(creator)
	if err != nil {
		t.Fatalf("zero withdraw failed: %v", err)
	}
	if withdrawn.Sign() != 0 {
		t.Fatalf("zero balance withdrew %s", withdrawn)
	}

	link, err := engine.CreateLink(creator, big.NewInt(400), "t", "g1:blob", 0, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := engine.BuyLink(buyer, link.ID); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	initialTotal := sumBalances(state, creator, buyer, vault)

	withdrawn, err = engine.WithdrawEarnings(creator)
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if withdrawn.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("withdrawn = %s, want 400", withdrawn)
	}
	balance, _ := engine.BalanceOf(creator)
	if balance.Sign() != 0 {
		t.Fatalf("balance not reset: %s", balance)
	}
	if got := state.account(creator).Balance; got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("creator account = %s, want 400", got)
	}
	if got := state.account(vault).Balance; got.Sign() != 0 {
		t.Fatalf("vault not drained: %s", got)
	}
	if got := sumBalances(state, creator, buyer, vault); initialTotal.Cmp(got) != 0 {
		t.Fatalf("total supply changed after withdraw: want %s got %s", initialTotal, got)
	}
}
