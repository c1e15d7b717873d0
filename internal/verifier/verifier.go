// Package verifier 实现转化事件的链上验证
//
// 验证结论区分永久与可重试: rejected 是终态且拒付，
// pending 可由对账任务重试。网络类故障一律落 pending，
// 基础设施抖动不能永久拒绝广告主的合法结算。
package verifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-ads/internal/blockchain"
	"github.com/eidos-exchange/eidos-ads/internal/model"
	"github.com/eidos-exchange/eidos-ads/pkg/logger"
)

// 拒绝原因
const (
	ReasonUnsupportedChain    = "unsupported chain id"
	ReasonTxFailed            = "transaction execution failed"
	ReasonTxTooOld            = "transaction older than recency window"
	ReasonSelfDealing         = "transaction sender equals beneficiary"
	ReasonContractMismatch    = "transaction does not touch expected contract"
	ReasonBeneficiaryMissing  = "beneficiary not referenced by settlement event"
	ReasonNoSettlementEvent   = "no recognized settlement event in transaction"
	reasonPendingNotMined     = "transaction not yet mined"
	reasonPendingNetworkError = "network error during verification"
)

// DefaultMaxBlockAge 默认区块新鲜度窗口 (约 2 小时)
const DefaultMaxBlockAge uint64 = 7200

// ClientRegistry 按链 ID 提供只读客户端
type ClientRegistry interface {
	Reader(chainID int64) (blockchain.Reader, error)
}

// Request 验证请求
type Request struct {
	TxHash          string
	ChainID         int64
	Beneficiary     string
	ContractAddress string
}

// Result 验证结论
//
// Sender 是交易发起方地址 (小写)，verified 时必定非空，
// 结算侧用它做 24 小时同一身份去重。
type Result struct {
	Status  model.VerificationStatus
	Reason  string
	Sender  string
	Details *model.SwapDetails
}

// Verifier 链上验证器
type Verifier struct {
	registry    ClientRegistry
	timeout     time.Duration
	maxBlockAge uint64
}

// Config 验证器配置
type Config struct {
	Timeout     time.Duration
	MaxBlockAge uint64
}

// New 创建验证器
func New(registry ClientRegistry, cfg Config) *Verifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	maxBlockAge := cfg.MaxBlockAge
	if maxBlockAge == 0 {
		maxBlockAge = DefaultMaxBlockAge
	}
	return &Verifier{
		registry:    registry,
		timeout:     timeout,
		maxBlockAge: maxBlockAge,
	}
}

func rejected(reason string) *Result {
	return &Result{Status: model.VerificationStatusRejected, Reason: reason}
}

func pending(reason string) *Result {
	return &Result{Status: model.VerificationStatusPending, Reason: reason}
}

// Verify 对单笔交易执行全部检查
//
// 检查顺序: 链支持 -> 回执存在 -> 执行成功 -> 新鲜度 ->
// 自刷单 -> 合约命中 -> 受益人出现在日志中。Verify 自身不报错，
// 所有故障都折叠进 Result.Status。
func (v *Verifier) Verify(ctx context.Context, req *Request) *Result {
	client, err := v.registry.Reader(req.ChainID)
	if err != nil {
		return rejected(ReasonUnsupportedChain)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	txHash := common.HexToHash(req.TxHash)

	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, blockchain.ErrTxNotFound) {
			return pending(reasonPendingNotMined)
		}
		logger.Warn("verification receipt fetch failed",
			zap.String("tx_hash", req.TxHash),
			zap.Int64("chain_id", req.ChainID),
			zap.Error(err))
		return pending(reasonPendingNetworkError)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return rejected(ReasonTxFailed)
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		// 无法断言新鲜度时也不能断言非法
		return pending(reasonPendingNetworkError)
	}
	txBlock := receipt.BlockNumber.Uint64()
	if head > txBlock && head-txBlock > v.maxBlockAge {
		return rejected(ReasonTxTooOld)
	}

	tx, _, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, blockchain.ErrTxNotFound) {
			return pending(reasonPendingNotMined)
		}
		return pending(reasonPendingNetworkError)
	}

	sender, err := client.TransactionSender(ctx, txHash)
	if err != nil {
		return pending(reasonPendingNetworkError)
	}
	senderHex := strings.ToLower(sender.Hex())

	beneficiary := strings.ToLower(req.Beneficiary)
	if senderHex == beneficiary {
		return rejected(ReasonSelfDealing)
	}

	if req.ContractAddress != "" && !touchesContract(tx, receipt, req.ContractAddress) {
		return rejected(ReasonContractMismatch)
	}

	found, sawSwapEvent := findBeneficiary(receipt.Logs, beneficiary)
	if !found {
		if sawSwapEvent {
			return rejected(ReasonBeneficiaryMissing)
		}
		return rejected(ReasonNoSettlementEvent)
	}

	details := extractSwapDetails(receipt.Logs)
	details.BlockNumber = receipt.BlockNumber.Int64()

	return &Result{
		Status:  model.VerificationStatusVerified,
		Sender:  senderHex,
		Details: details,
	}
}

// touchesContract 判断交易是否命中期望合约: 直接调用它，
// 或至少一条日志由它发出
func touchesContract(tx *types.Transaction, receipt *types.Receipt, contract string) bool {
	target := common.HexToAddress(contract)
	if tx.To() != nil && *tx.To() == target {
		return true
	}
	for _, log := range receipt.Logs {
		if log.Address == target {
			return true
		}
	}
	return false
}

// findBeneficiary 在日志中查找受益人地址
//
// 命中条件: 32 字节左填充后的 indexed topic，或非索引数据中的
// 子串 (不区分大小写)。同时返回是否见到任何可识别的结算事件，
// 调用方据此区分 "推荐人不对" 和 "根本不是一笔结算"。
func findBeneficiary(logs []*types.Log, beneficiary string) (found bool, sawSwapEvent bool) {
	addr := common.HexToAddress(beneficiary)
	paddedTopic := common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
	// 数据段按裸十六进制子串匹配，去掉 0x 前缀
	needle := strings.TrimPrefix(strings.ToLower(beneficiary), "0x")

	for _, log := range logs {
		if len(log.Topics) > 0 && isRecognizedSwapTopic(log.Topics[0]) {
			sawSwapEvent = true
		}
		for _, topic := range log.Topics {
			if topic == paddedTopic {
				found = true
			}
		}
		if !found && needle != "" {
			if strings.Contains(strings.ToLower(common.Bytes2Hex(log.Data)), needle) {
				found = true
			}
		}
		// 还需继续扫完日志以确定 sawSwapEvent
	}
	return found, sawSwapEvent
}
