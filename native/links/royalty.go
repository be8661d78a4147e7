package links

import "math/big"

const bpsDenominator = 10_000

// SplitProceeds computes how one purchase payment divides between the seller
// and the original creator's royalty track.
//
// On a primary sale the seller is the creator, no royalty is owed to oneself
// and the full price flows to the seller share. On a resale the royalty is
// price*royaltyBps/10000 with truncating integer division; the remainder of
// the division stays with the seller, so royalty+seller always reconstructs
// the price exactly.
func SplitProceeds(price *big.Int, royaltyBps uint32, primary bool) (royaltyShare, sellerShare *big.Int, err error) {
	if price == nil || price.Sign() <= 0 {
		return nil, nil, ErrInvalidPrice
	}
	if royaltyBps > MaxRoyaltyBps {
		return nil, nil, ErrInvalidRoyalty
	}
	if primary {
		return big.NewInt(0), new(big.Int).Set(price), nil
	}
	royaltyShare = new(big.Int).Mul(price, big.NewInt(int64(royaltyBps)))
	royaltyShare = royaltyShare.Div(royaltyShare, big.NewInt(bpsDenominator))
	sellerShare = new(big.Int).Sub(price, royaltyShare)
	return royaltyShare, sellerShare, nil
}
