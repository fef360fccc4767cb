package onchain

// contracts.go - Polygon contract addresses and the ABI fragments used here.

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// CTF contract, holds conditional tokens (ERC1155)
	ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	// Exchange contracts that need ERC1155 setApprovalForAll to sell
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	redeemGasLimit   = uint64(300_000)
	approvalGasLimit = uint64(80_000)
	safeExecGasLimit = uint64(400_000)
)

var (
	ctfABI        abi.ABI
	negRiskABI    abi.ABI
	erc20ABI      abi.ABI
	safeABI       abi.ABI
	binaryIndexes = []*big.Int{big.NewInt(1), big.NewInt(2)}
)

func init() {
	ctfABI = mustABI("ctf", `[
		{"name":"payoutDenominator","type":"function","stateMutability":"view",
		 "inputs":[{"name":"conditionId","type":"bytes32"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"redeemPositions","type":"function","stateMutability":"nonpayable",
		 "inputs":[
			{"name":"collateralToken","type":"address"},
			{"name":"parentCollectionId","type":"bytes32"},
			{"name":"conditionId","type":"bytes32"},
			{"name":"indexSets","type":"uint256[]"}],
		 "outputs":[]},
		{"name":"balanceOf","type":"function","stateMutability":"view",
		 "inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"setApprovalForAll","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],
		 "outputs":[]},
		{"name":"isApprovedForAll","type":"function","stateMutability":"view",
		 "inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],
		 "outputs":[{"name":"","type":"bool"}]}
	]`)

	negRiskABI = mustABI("neg risk adapter", `[
		{"name":"redeemPositions","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"_conditionId","type":"bytes32"},{"name":"_amounts","type":"uint256[]"}],
		 "outputs":[]}
	]`)

	erc20ABI = mustABI("erc20", `[
		{"name":"balanceOf","type":"function","stateMutability":"view",
		 "inputs":[{"name":"account","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`)

	safeABI = mustABI("safe", `[
		{"name":"nonce","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"getThreshold","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"getTransactionHash","type":"function","stateMutability":"view",
		 "inputs":[
			{"name":"to","type":"address"},
			{"name":"value","type":"uint256"},
			{"name":"data","type":"bytes"},
			{"name":"operation","type":"uint8"},
			{"name":"safeTxGas","type":"uint256"},
			{"name":"baseGas","type":"uint256"},
			{"name":"gasPrice","type":"uint256"},
			{"name":"gasToken","type":"address"},
			{"name":"refundReceiver","type":"address"},
			{"name":"_nonce","type":"uint256"}],
		 "outputs":[{"name":"","type":"bytes32"}]},
		{"name":"execTransaction","type":"function","stateMutability":"payable",
		 "inputs":[
			{"name":"to","type":"address"},
			{"name":"value","type":"uint256"},
			{"name":"data","type":"bytes"},
			{"name":"operation","type":"uint8"},
			{"name":"safeTxGas","type":"uint256"},
			{"name":"baseGas","type":"uint256"},
			{"name":"gasPrice","type":"uint256"},
			{"name":"gasToken","type":"address"},
			{"name":"refundReceiver","type":"address"},
			{"name":"signatures","type":"bytes"}],
		 "outputs":[{"name":"success","type":"bool"}]}
	]`)
}

func mustABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}

// hexToBytes32 converts a 0x-prefixed hex string to [32]byte.
func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}

// parseTokenID accepts decimal (Data API) or 0x-hex token IDs.
func parseTokenID(tokenID string) (*big.Int, error) {
	tid, ok := new(big.Int).SetString(tokenID, 10)
	if ok {
		return tid, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(tokenID, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid token ID %q", tokenID)
	}
	return new(big.Int).SetBytes(b), nil
}

func microToFloat(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return f
}
