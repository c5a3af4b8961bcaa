package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// 托管合约ABI定义（简化版）
const escrowABI = `[
	{
		"inputs": [],
		"name": "oracleAddress",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "_projectId", "type": "uint256"}],
		"name": "getProject",
		"outputs": [
			{"name": "name", "type": "string"},
			{"name": "totalBudget", "type": "uint256"},
			{"name": "milestoneCount", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "_projectId", "type": "uint256"},
			{"name": "_milestoneIndex", "type": "uint256"}
		],
		"name": "getMilestone",
		"outputs": [
			{"name": "description", "type": "string"},
			{"name": "amount", "type": "uint256"},
			{"name": "isCompleted", "type": "bool"},
			{"name": "isReleased", "type": "bool"},
			{"name": "evidenceIpfsHash", "type": "string"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "_projectId", "type": "uint256"},
			{"name": "_milestoneIndex", "type": "uint256"},
			{"name": "_verdict", "type": "bool"}
		],
		"name": "releaseMilestone",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// 等待确认时的回执轮询间隔
const receiptPollInterval = 3 * time.Second

// EVMBackend 基于EVM链（Mantle等）的结算后端
type EVMBackend struct {
	client       *ethclient.Client
	privateKey   *ecdsa.PrivateKey
	contractAddr common.Address
	contractABI  abi.ABI
	chainId      *big.Int
	chainType    string
}

// NewEVMBackend 创建EVM结算后端
func NewEVMBackend(cfg config.ChainConfig) (*EVMBackend, error) {
	// 连接链客户端
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain client: %w", err)
	}

	// 解析私钥
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	// 解析ABI
	parsedABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	return &EVMBackend{
		client:       client,
		privateKey:   privateKey,
		contractAddr: common.HexToAddress(cfg.ContractAddr),
		contractABI:  parsedABI,
		chainId:      big.NewInt(cfg.ChainId),
		chainType:    cfg.ChainType,
	}, nil
}

// parseProjectRef 将数据库中的链上关联ID解析为uint256
func parseProjectRef(projectRef string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(projectRef), 10)
	if !ok {
		return nil, fmt.Errorf("invalid on-chain project reference: %q", projectRef)
	}
	return id, nil
}

// call 执行只读合约调用并解包返回值
func (b *EVMBackend) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := b.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	out, err := b.client.CallContract(ctx, ethereum.CallMsg{
		To:   &b.contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, err
	}

	values, err := b.contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return values, nil
}

// GetMilestoneState 查询链上里程碑状态
func (b *EVMBackend) GetMilestoneState(ctx context.Context, projectRef string, index uint64) (*MilestoneState, error) {
	projectId, err := parseProjectRef(projectRef)
	if err != nil {
		return nil, err
	}

	values, err := b.call(ctx, "getMilestone", projectId, new(big.Int).SetUint64(index))
	if err != nil {
		// 只有合约回滚才视为索引不存在；RPC传输错误必须原样上抛，
		// 否则上层会误入索引兼容回退，向错误的索引放款
		if isRevertError(err) {
			return nil, fmt.Errorf("%w: project %s index %d: %v", ErrMilestoneNotFound, projectRef, index, err)
		}
		return nil, fmt.Errorf("milestone lookup rpc error for project %s index %d: %w", projectRef, index, err)
	}
	if len(values) < 4 {
		return nil, fmt.Errorf("unexpected getMilestone result arity: %d", len(values))
	}

	state := &MilestoneState{}
	if desc, ok := values[0].(string); ok {
		state.Description = desc
	}
	if amount, ok := values[1].(*big.Int); ok {
		state.Amount = amount
	} else {
		state.Amount = big.NewInt(0)
	}
	if completed, ok := values[2].(bool); ok {
		state.Completed = completed
	}
	if released, ok := values[3].(bool); ok {
		state.Released = released
	}

	return state, nil
}

// GetProjectState 查询链上项目全量状态
func (b *EVMBackend) GetProjectState(ctx context.Context, projectRef string) (*ProjectState, error) {
	projectId, err := parseProjectRef(projectRef)
	if err != nil {
		return nil, err
	}

	values, err := b.call(ctx, "getProject", projectId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project %s from chain: %w", projectRef, err)
	}
	if len(values) < 3 {
		return nil, fmt.Errorf("unexpected getProject result arity: %d", len(values))
	}

	state := &ProjectState{TotalBudget: big.NewInt(0)}
	if name, ok := values[0].(string); ok {
		state.Name = name
	}
	if budget, ok := values[1].(*big.Int); ok {
		state.TotalBudget = budget
	}

	count := uint64(0)
	if c, ok := values[2].(*big.Int); ok {
		count = c.Uint64()
	}

	for i := uint64(0); i < count; i++ {
		ms, err := b.GetMilestoneState(ctx, projectRef, i)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch milestone %d of project %s: %w", i, projectRef, err)
		}
		state.Milestones = append(state.Milestones, *ms)
	}

	return state, nil
}

// GetAuthority 查询链上注册的oracle地址
func (b *EVMBackend) GetAuthority(ctx context.Context) (string, error) {
	values, err := b.call(ctx, "oracleAddress")
	if err != nil {
		return "", fmt.Errorf("failed to read contract oracle address: %w", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected oracleAddress result type %T", values[0])
	}
	return addr.Hex(), nil
}

// SignerAddress 配置的签名账户地址
func (b *EVMBackend) SignerAddress() string {
	return crypto.PubkeyToAddress(b.privateKey.PublicKey).Hex()
}

// releaseCalldata 构造放款调用数据
func (b *EVMBackend) releaseCalldata(projectRef string, index uint64) ([]byte, error) {
	projectId, err := parseProjectRef(projectRef)
	if err != nil {
		return nil, err
	}
	return b.contractABI.Pack("releaseMilestone", projectId, new(big.Int).SetUint64(index), true)
}

// EstimateRelease 估算放款调用的gas消耗
func (b *EVMBackend) EstimateRelease(ctx context.Context, projectRef string, index uint64) (uint64, error) {
	data, err := b.releaseCalldata(projectRef, index)
	if err != nil {
		return 0, err
	}

	from := crypto.PubkeyToAddress(b.privateKey.PublicKey)
	gas, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &b.contractAddr,
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", err)
	}
	return gas, nil
}

// SubmitRelease 签名并广播放款交易
func (b *EVMBackend) SubmitRelease(ctx context.Context, projectRef string, index uint64, gasLimit uint64) (string, error) {
	data, err := b.releaseCalldata(projectRef, index)
	if err != nil {
		return "", err
	}

	from := crypto.PubkeyToAddress(b.privateKey.PublicKey)

	// nonce必须在提交前即时读取，避免过期序号被拒
	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, b.contractAddr, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainId), b.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := b.client.SendTransaction(ctx, signedTx); err != nil {
		return "", classifySubmitError(err)
	}

	txRef := NormalizeTxRef(signedTx.Hash().Hex())
	logger.Info("Release transaction submitted: %s (nonce: %d, gas limit: %d)", txRef, nonce, gasLimit)
	return txRef, nil
}

// isRevertError 判断调用错误是否为合约回滚（越界索引等），而非网络/节点故障
func isRevertError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}

// classifySubmitError 将节点拒绝原因归类为可操作的错误类型
func classifySubmitError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return &SubmitError{Rejection: RejectInsufficientFunds, Err: err}
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "stale"):
		return &SubmitError{Rejection: RejectStaleSequence, Err: err}
	case strings.Contains(msg, "already known"), strings.Contains(msg, "known transaction"),
		strings.Contains(msg, "replacement transaction underpriced"):
		return &SubmitError{Rejection: RejectDuplicate, Err: err}
	default:
		return &SubmitError{Rejection: RejectUnknown, Err: err}
	}
}

// AwaitFinality 轮询回执直到确认或超时
func (b *EVMBackend) AwaitFinality(ctx context.Context, txRef string, timeout time.Duration) (TxStatus, error) {
	deadline := time.Now().Add(timeout)
	txHash := common.HexToHash(txRef)

	for {
		receipt, err := b.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return TxStatusOk, nil
			}
			return TxStatusReverted, nil
		}

		if time.Now().After(deadline) {
			// 超时不等于失败：交易可能仍在途，交由对账任务确认
			return 0, ErrFinalityTimeout
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

// ReplayCall 只读重放放款调用以恢复回滚原因
func (b *EVMBackend) ReplayCall(ctx context.Context, projectRef string, index uint64) string {
	data, err := b.releaseCalldata(projectRef, index)
	if err != nil {
		return ""
	}

	from := crypto.PubkeyToAddress(b.privateKey.PublicKey)
	_, err = b.client.CallContract(ctx, ethereum.CallMsg{
		From: from,
		To:   &b.contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return err.Error()
	}
	return ""
}

// Decimals wei精度
func (b *EVMBackend) Decimals() int32 {
	return 18
}

// ChainType 链类型标识
func (b *EVMBackend) ChainType() string {
	return b.chainType
}

// CheckHealth 检查RPC连通性、合约部署与签名账户余额
func (b *EVMBackend) CheckHealth(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"chain_type":    b.chainType,
		"chain_id":      b.chainId.Int64(),
		"client_status": "connected",
	}

	blockNum, err := b.client.BlockNumber(ctx)
	if err != nil {
		health["client_status"] = "disconnected"
		return health
	}
	health["latest_block"] = blockNum

	code, err := b.client.CodeAt(ctx, b.contractAddr, nil)
	health["contract_deployed"] = err == nil && len(code) > 0

	from := crypto.PubkeyToAddress(b.privateKey.PublicKey)
	if balance, err := b.client.BalanceAt(ctx, from, nil); err == nil {
		health["signer_address"] = from.Hex()
		health["signer_balance"] = FromSmallestUnit(balance, b.Decimals()).String()
		if balance.Sign() == 0 {
			health["signer_warning"] = "signer wallet is empty, release calls will fail gas checks"
		}
	}

	return health
}

// Close 关闭链客户端
func (b *EVMBackend) Close() {
	b.client.Close()
}
