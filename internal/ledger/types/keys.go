package types

const (
	// ModuleName is the error codespace and tx type prefix of the grid ledger.
	ModuleName = "grid"

	// GridSize is the side length of the board. Coordinates are 1-based.
	GridSize = 9

	TxJoin     = ModuleName + "/join"
	TxMove     = ModuleName + "/move"
	TxDisclose = ModuleName + "/disclose"
)
