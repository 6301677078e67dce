// Package exchange contains the venue and reference price adapters. Both
// sit behind the narrow core interfaces and translate remote failures into
// conservative values: a price that cannot be fetched is 0, a balance that
// cannot be fetched is 0, and the guards upstream fail closed on both.
package exchange

import "strings"

// tokenInfo describes one tradeable token on the venue.
type tokenInfo struct {
	Address  string
	Decimals int
	Chain    string
}

// mainnetTokens maps portfolio symbols to their Ethereum mainnet token
// contracts, which is how the venue API identifies assets.
var mainnetTokens = map[string]tokenInfo{
	"USDC": {Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Chain: "evm"},
	"WETH": {Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, Chain: "evm"},
	"WBTC": {Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8, Chain: "evm"},
	"DAI":  {Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, Chain: "evm"},
	"USDT": {Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6, Chain: "evm"},
}

// TokenAddress resolves a symbol to its contract address. Empty when the
// symbol is unknown.
func TokenAddress(symbol string) string {
	return mainnetTokens[strings.ToUpper(symbol)].Address
}

// binanceSymbols maps portfolio symbols to the spot tickers used for
// reference pricing. Wrapped tokens track their underlying.
var binanceSymbols = map[string]string{
	"WETH": "ETH",
	"WBTC": "BTC",
	"ETH":  "ETH",
	"BTC":  "BTC",
	"SOL":  "SOL",
}
