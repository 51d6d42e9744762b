package amm

import "github.com/ethereum/go-ethereum/common"

// Transfer moves Amount units of Asset from one custody to another.
type Transfer struct {
	Asset  common.Address `json:"asset"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// ShareChange mints (Burn == false) or burns pool shares for an owner.
type ShareChange struct {
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount"`
	Burn   bool           `json:"burn"`
}

// Event describes what an operation did. Data is one of the model event payloads.
type Event struct {
	Name string
	Data interface{}
}

// Outcome is the result of a successful operation: the replacement pool
// state plus the transfers and share changes that must commit with it.
type Outcome struct {
	Pool      Pool
	Transfers []Transfer
	Shares    []ShareChange
	Event     Event
}

func (o *Outcome) addTransfer(asset, from, to common.Address, amount uint64) {
	if amount == 0 {
		return
	}
	o.Transfers = append(o.Transfers, Transfer{Asset: asset, From: from, To: to, Amount: amount})
}
