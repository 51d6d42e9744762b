package model

// Event names as written to the journal and the pool_events table.
const (
	EventInitialize           = "initialize"
	EventDeposit              = "deposit"
	EventWithdraw             = "withdraw"
	EventSwap                 = "swap"
	EventWithdrawProtocolFees = "withdraw_protocol_fees"
	EventPause                = "pause"
)

// InitializeEventData is the payload of a pool creation.
type InitializeEventData struct {
	Pool           string `json:"pool"`
	AssetA         string `json:"asset_a"`
	AssetB         string `json:"asset_b"`
	VaultA         string `json:"vault_a"`
	VaultB         string `json:"vault_b"`
	FeeVaultA      string `json:"fee_vault_a"`
	FeeVaultB      string `json:"fee_vault_b"`
	FeeBps         uint16 `json:"fee_bps"`
	ProtocolFeeBps uint16 `json:"protocol_fee_bps"`
	Admin          string `json:"admin"`
	Paused         bool   `json:"paused"`
}

// DepositEventData is the payload of a liquidity deposit.
type DepositEventData struct {
	User         string `json:"user"`
	Pool         string `json:"pool"`
	AmountAIn    uint64 `json:"amount_a_in"`
	AmountBIn    uint64 `json:"amount_b_in"`
	SharesMinted uint64 `json:"shares_minted"`
}

// WithdrawEventData is the payload of a liquidity withdrawal.
type WithdrawEventData struct {
	User         string `json:"user"`
	Pool         string `json:"pool"`
	SharesBurned uint64 `json:"shares_burned"`
	AmountAOut   uint64 `json:"amount_a_out"`
	AmountBOut   uint64 `json:"amount_b_out"`
}

// SwapEventData is the payload of a swap.
type SwapEventData struct {
	User        string `json:"user"`
	Pool        string `json:"pool"`
	Direction   string `json:"direction"`
	AmountIn    uint64 `json:"amount_in"`
	AmountOut   uint64 `json:"amount_out"`
	ProtocolFee uint64 `json:"protocol_fee"`
}

// ProtocolFeeWithdrawEventData is the payload of an admin fee withdrawal.
type ProtocolFeeWithdrawEventData struct {
	Admin   string `json:"admin"`
	Pool    string `json:"pool"`
	AmountA uint64 `json:"amount_a"`
	AmountB uint64 `json:"amount_b"`
}

// PauseEventData is the payload of a pause toggle.
type PauseEventData struct {
	Admin  string `json:"admin"`
	Pool   string `json:"pool"`
	Paused bool   `json:"paused"`
}
