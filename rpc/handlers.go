package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"

	"revenueos/crypto"
	"revenueos/native/links"
)

func decodeIdentity(bech string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(bech)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func encodeIdentity(identity [20]byte) string {
	return crypto.MustNewAddress(identity).String()
}

// parseAmount accepts decimal-string amounts in the settlement currency's
// smallest unit.
func parseAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	return amount, ok
}

func (s *Server) decodeParams(w http.ResponseWriter, req *RPCRequest, out any) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "method requires a single parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return false
	}
	return true
}

type linkPayload struct {
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

func newLinkPayload(l *links.Link) linkPayload {
	return linkPayload{
		ID:               l.ID,
		Creator:          encodeIdentity(l.Creator),
		RightsHolder:     encodeIdentity(l.RightsHolder),
		Price:            l.Price.String(),
		Title:            l.Title,
		EncryptedContent: l.EncryptedContent,
		SoldCount:        l.SoldCount,
		TotalEarned:      l.TotalEarned.String(),
		RoyaltyBps:       l.RoyaltyBps,
		CreatedAt:        l.CreatedAt,
	}
}

type createLinkParams struct {
	Creator          string `json:"creator"`
	Price            string `json:"price"`
	Title            string `json:"title"`
	EncryptedContent string `json:"encryptedContent"`
	RoyaltyBps       uint32 `json:"royaltyBps"`
	ExpectedID       uint64 `json:"expectedId"`
}

func (s *Server) handleCreateLink(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createLinkParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	creator, err := decodeIdentity(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid creator", err.Error())
		return
	}
	price, ok := parseAmount(params.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", params.Price)
		return
	}
	link, err := s.engine.CreateLink(creator, price, params.Title, params.EncryptedContent, params.RoyaltyBps, params.ExpectedID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, newLinkPayload(link))
}

func (s *Server) handleNextLinkID(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	next, err := s.engine.NextLinkID()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"nextId": next})
}

type buyLinkParams struct {
	Buyer  string `json:"buyer"`
	LinkID uint64 `json:"linkId"`
}

type receiptPayload struct {
	ID             string `json:"id"`
	LinkID         uint64 `json:"linkId"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Price          string `json:"price"`
	RoyaltyShare   string `json:"royaltyShare"`
	SellerProceeds string `json:"sellerProceeds"`
	PrimarySale    bool   `json:"primarySale"`
	PurchasedAt    int64  `json:"purchasedAt"`
}

func (s *Server) handleBuyLink(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params buyLinkParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	buyer, err := decodeIdentity(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer", err.Error())
		return
	}
	receipt, err := s.engine.BuyLink(buyer, params.LinkID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, receiptPayload{
		ID:             receipt.ID,
		LinkID:         receipt.LinkID,
		Buyer:          encodeIdentity(receipt.Buyer),
		Seller:         encodeIdentity(receipt.Seller),
		Price:          receipt.Price.String(),
		RoyaltyShare:   receipt.RoyaltyShare.String(),
		SellerProceeds: receipt.SellerProceeds.String(),
		PrimarySale:    receipt.PrimarySale,
		PurchasedAt:    receipt.PurchasedAt,
	})
}

type setResalePriceParams struct {
	Caller string `json:"caller"`
	LinkID uint64 `json:"linkId"`
	Price  string `json:"price"`
}

func (s *Server) handleSetResalePrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setResalePriceParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeIdentity(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	price, ok := parseAmount(params.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", params.Price)
		return
	}
	if err := s.engine.SetResalePrice(caller, params.LinkID, price); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

type identityParams struct {
	Identity string `json:"identity"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params identityParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	identity, err := decodeIdentity(params.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid identity", err.Error())
		return
	}
	withdrawn, err := s.engine.WithdrawEarnings(identity)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"withdrawn": withdrawn.String()})
}

type linkIDParams struct {
	LinkID uint64 `json:"linkId"`
}

func (s *Server) handleGetLink(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params linkIDParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	link, err := s.engine.GetLink(params.LinkID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, newLinkPayload(link))
}

type creatorParams struct {
	Creator string `json:"creator"`
}

func (s *Server) handleLinksByCreator(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params creatorParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	creator, err := decodeIdentity(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid creator", err.Error())
		return
	}
	ids, err := s.engine.LinksByCreator(creator)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeResult(w, req.ID, map[string][]uint64{"linkIds": ids})
}

type hasPurchasedParams struct {
	LinkID   uint64 `json:"linkId"`
	Identity string `json:"identity"`
}

func (s *Server) handleHasPurchased(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params hasPurchasedParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	identity, err := decodeIdentity(params.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid identity", err.Error())
		return
	}
	purchased, err := s.engine.HasPurchased(params.LinkID, identity)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"purchased": purchased})
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params identityParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	identity, err := decodeIdentity(params.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid identity", err.Error())
		return
	}
	balance, err := s.engine.BalanceOf(identity)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}
