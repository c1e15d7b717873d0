package verifier

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eidos-exchange/eidos-ads/internal/model"
)

// 可识别的结算事件签名
var (
	// Swap(address,uint256,uint256,uint256,uint256,address)
	topicUniswapV2Swap = common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822")
	// Swap(address,address,int256,int256,uint160,uint128,int24)
	topicUniswapV3Swap = common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")
)

func isRecognizedSwapTopic(topic common.Hash) bool {
	return topic == topicUniswapV2Swap || topic == topicUniswapV3Swap
}

// extractSwapDetails 从日志中尽力解析交易细节
//
// 取第一条可识别的 swap 日志。解析只用于记账展示，
// 任何缺失或畸形都退化为 unrecognized，绝不影响验证结论。
func extractSwapDetails(logs []*types.Log) *model.SwapDetails {
	for _, log := range logs {
		if len(log.Topics) == 0 {
			continue
		}
		switch log.Topics[0] {
		case topicUniswapV2Swap:
			if d := parseV2Swap(log); d != nil {
				return d
			}
		case topicUniswapV3Swap:
			if d := parseV3Swap(log); d != nil {
				return d
			}
		}
	}
	return &model.SwapDetails{Kind: model.SwapKindUnrecognized}
}

// parseV2Swap 解析 V2 Swap 日志
//
// topics: [sig, sender, to]
// data: amount0In, amount1In, amount0Out, amount1Out
func parseV2Swap(log *types.Log) *model.SwapDetails {
	if len(log.Topics) < 3 || len(log.Data) < 128 {
		return nil
	}

	amount0In := word(log.Data, 0)
	amount1In := word(log.Data, 1)
	amount0Out := word(log.Data, 2)
	amount1Out := word(log.Data, 3)

	amountIn := amount0In
	if amountIn.Sign() == 0 {
		amountIn = amount1In
	}
	amountOut := amount0Out
	if amountOut.Sign() == 0 {
		amountOut = amount1Out
	}

	return &model.SwapDetails{
		Kind:      model.SwapKindUniswapV2,
		Swapper:   topicAddress(log.Topics[2]),
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
	}
}

// parseV3Swap 解析 V3 Swap 日志
//
// topics: [sig, sender, recipient]
// data: amount0 (int256), amount1 (int256), sqrtPriceX96, liquidity, tick。
// 符号约定: 正数为流入池子的一侧。
func parseV3Swap(log *types.Log) *model.SwapDetails {
	if len(log.Topics) < 3 || len(log.Data) < 64 {
		return nil
	}

	amount0 := signedWord(log.Data, 0)
	amount1 := signedWord(log.Data, 1)

	var amountIn, amountOut *big.Int
	if amount0.Sign() >= 0 {
		amountIn = amount0
		amountOut = new(big.Int).Neg(amount1)
	} else {
		amountIn = amount1
		amountOut = new(big.Int).Neg(amount0)
	}

	return &model.SwapDetails{
		Kind:      model.SwapKindUniswapV3,
		Swapper:   topicAddress(log.Topics[2]),
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
	}
}

// word 取第 i 个 32 字节字
func word(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*32 : (i+1)*32])
}

var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

// signedWord 按 int256 补码解释第 i 个字
func signedWord(data []byte, i int) *big.Int {
	v := word(data, i)
	if v.Bit(255) == 1 {
		v.Sub(v, twoPow256)
	}
	return v
}

func topicAddress(topic common.Hash) string {
	return common.BytesToAddress(topic.Bytes()).Hex()
}
