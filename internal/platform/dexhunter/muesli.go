package dexhunter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// policyIDLen is the hex length of a Cardano minting policy id.
const policyIDLen = 56

type muesliAsset struct {
	PolicyID  string `json:"policyId"`
	AssetName string `json:"assetName"`
	Amount    string `json:"amount,omitempty"`
}

type muesliSwapRequest struct {
	WalletAddress string      `json:"walletAddress"`
	Sell          muesliAsset `json:"sell"`
	Buy           muesliAsset `json:"buy"`
	Slippage      float64     `json:"slippage"`
	Dex           string      `json:"dex,omitempty"`
}

func splitUnit(unit string) muesliAsset {
	if unit == lovelaceUnit || len(unit) < policyIDLen {
		return muesliAsset{}
	}
	return muesliAsset{PolicyID: unit[:policyIDLen], AssetName: unit[policyIDLen:]}
}

// buildMuesli builds through the MuesliSwap aggregator. Amounts are sent in
// the smallest unit and slippage as a fraction.
func (c *Client) buildMuesli(ctx context.Context, fromUnit, toUnit string, amount int64, slippagePct float64, venueHint string) (domain.UnsignedTx, int64, error) {
	sell := splitUnit(fromUnit)
	sell.Amount = strconv.FormatInt(amount, 10)
	req := muesliSwapRequest{
		WalletAddress: c.address,
		Sell:          sell,
		Buy:           splitUnit(toUnit),
		Slippage:      slippagePct / 100,
		Dex:           strings.ToLower(venueHint),
	}
	var resp buildResponse
	if err := c.post(ctx, c.fallbackURL+"/v1/swap", req, &resp); err != nil {
		return domain.UnsignedTx{}, 0, fmt.Errorf("muesliswap: build: %w", err)
	}
	cbor := resp.cbor()
	if cbor == "" {
		return domain.UnsignedTx{}, 0, fmt.Errorf("muesliswap: build: response carried no transaction")
	}
	return domain.UnsignedTx{CborHex: cbor, Source: "muesliswap"}, int64(resp.output()), nil
}
