package blockchain

import (
	"strconv"
	"sync"

	"github.com/eidos-exchange/eidos-ads/pkg/errors"
	"github.com/eidos-exchange/eidos-ads/pkg/logger"
	"go.uber.org/zap"
)

// defaultRPCURLs 各链的兜底公共 RPC，配置缺失时使用
var defaultRPCURLs = map[int64][]string{
	1:     {"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"},
	10:    {"https://mainnet.optimism.io", "https://rpc.ankr.com/optimism"},
	56:    {"https://bsc-dataseed.binance.org", "https://rpc.ankr.com/bsc"},
	137:   {"https://polygon-rpc.com", "https://rpc.ankr.com/polygon"},
	8453:  {"https://mainnet.base.org", "https://rpc.ankr.com/base"},
	42161: {"https://arb1.arbitrum.io/rpc", "https://rpc.ankr.com/arbitrum"},
}

// Registry 按链 ID 管理只读客户端，按需创建并复用
type Registry struct {
	mu      sync.Mutex
	clients map[int64]Reader
	rpcURLs map[int64][]string
}

// NewRegistry 创建客户端注册表
//
// rpcURLs 中的配置覆盖同链的默认端点。
func NewRegistry(rpcURLs map[int64]string) *Registry {
	merged := make(map[int64][]string, len(defaultRPCURLs))
	for chainID, urls := range defaultRPCURLs {
		merged[chainID] = urls
	}
	for chainID, url := range rpcURLs {
		if url == "" {
			continue
		}
		// 配置端点优先，默认端点降级为备用
		merged[chainID] = append([]string{url}, merged[chainID]...)
	}

	return &Registry{
		clients: make(map[int64]Reader),
		rpcURLs: merged,
	}
}

// Reader 返回指定链的只读客户端，链不受支持时返回 ErrUnsupportedChain
func (r *Registry) Reader(chainID int64) (Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[chainID]; ok {
		return client, nil
	}

	urls, ok := r.rpcURLs[chainID]
	if !ok {
		return nil, errors.ErrUnsupportedChain.WithDetail("chain_id", strconv.FormatInt(chainID, 10))
	}

	client, err := NewClient(&ClientConfig{
		ChainID: chainID,
		RPCURLs: urls,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("blockchain client created",
		zap.Int64("chain_id", chainID),
		zap.Int("endpoints", len(urls)))

	r.clients[chainID] = client
	return client, nil
}

// Register 注入指定链的客户端，覆盖已有实例
func (r *Registry) Register(chainID int64, client Reader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[chainID] = client
}

// Close 关闭所有已创建的客户端
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chainID, client := range r.clients {
		if c, ok := client.(*Client); ok {
			c.Close()
		}
		delete(r.clients, chainID)
	}
}
