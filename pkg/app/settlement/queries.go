package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flash/pkg/ledger"
	"github.com/uhyunpark/flash/pkg/order"
	"github.com/uhyunpark/flash/pkg/storage"
)

// OrderStatus is everything persisted about one order hash
type OrderStatus struct {
	Hash         common.Hash            `json:"hash"`
	Received     bool                   `json:"received"`
	Sent         bool                   `json:"sent"`
	Resolved     bool                   `json:"resolved"`
	Liquidator   common.Address         `json:"liquidator"`
	BitcoinState BitcoinCollateralState `json:"bitcoinState"`
}

func (s *Service) OrderStatus(hash common.Hash) (OrderStatus, error) {
	v := s.ledger.View()
	st := OrderStatus{Hash: hash}
	var err error
	if st.Received, err = storage.Received.Has(v, hash); err != nil {
		return st, err
	}
	if st.Sent, err = storage.Sent.Has(v, hash); err != nil {
		return st, err
	}
	if st.Resolved, err = storage.Resolved.Has(v, hash); err != nil {
		return st, err
	}
	if st.Liquidator, err = v.Liquidator(hash); err != nil {
		return st, err
	}
	raw, err := v.BitcoinState(hash)
	st.BitcoinState = BitcoinCollateralState(raw)
	return st, err
}

func (s *Service) OrderAssetReceived(hash common.Hash) (bool, error) {
	return storage.Received.Has(s.ledger.View(), hash)
}

func (s *Service) OrderAssetSent(hash common.Hash) (bool, error) {
	return storage.Sent.Has(s.ledger.View(), hash)
}

func (s *Service) OrderResolved(hash common.Hash) (bool, error) {
	return storage.Resolved.Has(s.ledger.View(), hash)
}

// OrderLiquidator is the zero address unless a liquidation send happened
func (s *Service) OrderLiquidator(hash common.Hash) (common.Address, error) {
	return s.ledger.View().Liquidator(hash)
}

func (s *Service) BitcoinCollateralStateOf(hash common.Hash) (BitcoinCollateralState, error) {
	raw, err := s.ledger.View().BitcoinState(hash)
	return BitcoinCollateralState(raw), err
}

// BitcoinAddressUsage returns the order that reserved a Bitcoin address
func (s *Service) BitcoinAddressUsage(address string) (common.Hash, bool, error) {
	return s.ledger.View().AddressUsage(address)
}

func (s *Service) HasMarker(eventHash common.Hash) (bool, error) {
	return s.ledger.HasMarker(eventHash)
}

func (s *Service) Collateral(actor common.Address, chain *big.Int) (ledger.CollateralState, error) {
	return s.ledger.Collateral(actor, chain)
}

func (s *Service) Balance(token, owner common.Address) (*big.Int, error) {
	return s.ledger.View().Balance(token, owner)
}

// Windows returns the end of the exclusive send window and of the
// liquidation window
func Windows(o *order.Order) (sendEnd, liqEnd *big.Int) {
	return o.SendDeadline(), o.LiqSendDeadline()
}
