package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
)

// entityManagerABI holds the only event of the EntityManager contract the indexer reads
const entityManagerABI = `[{
	"anonymous": false,
	"name": "ManageEntity",
	"type": "event",
	"inputs": [
		{"indexed": false, "internalType": "uint256", "name": "_userId", "type": "uint256"},
		{"indexed": false, "internalType": "address", "name": "_signer", "type": "address"},
		{"indexed": false, "internalType": "string", "name": "_entityType", "type": "string"},
		{"indexed": false, "internalType": "uint256", "name": "_entityId", "type": "uint256"},
		{"indexed": false, "internalType": "string", "name": "_metadata", "type": "string"},
		{"indexed": false, "internalType": "string", "name": "_action", "type": "string"}
	]
}]`

const manageEntityEvent = "ManageEntity"

var (
	parsedABI         abi.ABI
	manageEntityTopic common.Hash
)

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(entityManagerABI))
	if err != nil {
		panic(fmt.Sprintf("invalid EntityManager ABI: %v", err))
	}
	manageEntityTopic = parsedABI.Events[manageEntityEvent].ID
}

// ManageEntityTopic returns the topic hash of the ManageEntity event
func ManageEntityTopic() common.Hash {
	return manageEntityTopic
}

// Config holds the chain log source configuration
type Config struct {
	ContractAddress string
	// MaxRetries bounds the attempts of every RPC call
	MaxRetries    uint64
	RetryInterval time.Duration
}

// LogSource reads ManageEntity logs from the chain
//
//go:generate mockgen -source=logsource.go -destination=../../mocks/logsource.go -package=mocks -mock_names=LogSource=MockLogSource
type LogSource interface {
	// LatestBlock returns the number of the chain head
	LatestBlock(ctx context.Context) (uint64, error)

	// FetchBlocks returns the blocks in [from, to] that hold at least one
	// ManageEntity log, in chain order with their transactions in index order
	FetchBlocks(ctx context.Context, from, to uint64) ([]domain.Block, error)

	// GetEntityManagerEventsForTx decodes the ManageEntity logs of one transaction
	GetEntityManagerEventsForTx(ctx context.Context, txHash string) ([]domain.RawEvent, error)
}

type logSource struct {
	client   adapter.EthClient
	contract common.Address
	config   Config
}

// NewLogSource creates a log source over the EntityManager contract
func NewLogSource(cfg Config, client adapter.EthClient) (LogSource, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid EntityManager address %q", cfg.ContractAddress)
	}
	return &logSource{
		client:   client,
		contract: common.HexToAddress(cfg.ContractAddress),
		config:   cfg,
	}, nil
}

// retry runs op with a constant delay between at most MaxRetries retries
func (s *logSource) retry(ctx context.Context, name string, op func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.config.RetryInterval), s.config.MaxRetries),
		ctx,
	)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		logger.WarnCtx(ctx, "RPC call failed, retrying",
			zap.String("call", name),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

func (s *logSource) LatestBlock(ctx context.Context) (uint64, error) {
	var latest uint64
	err := s.retry(ctx, "eth_blockNumber", func() error {
		var err error
		latest, err = s.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return latest, nil
}

func (s *logSource) FetchBlocks(ctx context.Context, from, to uint64) ([]domain.Block, error) {
	if from > to {
		return nil, nil
	}

	logs, err := s.filterLogs(ctx, from, to)
	if err != nil {
		return nil, err
	}

	sort.Slice(logs, func(i, j int) bool {
		a, b := logs[i], logs[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.Index < b.Index
	})

	var blocks []domain.Block
	for _, vLog := range logs {
		if vLog.Removed {
			continue
		}
		event, ok := s.decodeLog(ctx, vLog)
		if !ok {
			continue
		}

		if len(blocks) == 0 || blocks[len(blocks)-1].Number != vLog.BlockNumber {
			blocks = append(blocks, domain.Block{
				Number: vLog.BlockNumber,
				Hash:   vLog.BlockHash.Hex(),
			})
		}
		block := &blocks[len(blocks)-1]
		txs := block.Transactions
		if len(txs) == 0 || txs[len(txs)-1].Hash != event.TxHash {
			block.Transactions = append(block.Transactions, domain.Transaction{
				Hash:  event.TxHash,
				Index: vLog.TxIndex,
			})
		}
		tx := &block.Transactions[len(block.Transactions)-1]
		tx.Events = append(tx.Events, event)
	}

	for i := range blocks {
		ts, err := s.blockTimestamp(ctx, blocks[i].Number)
		if err != nil {
			return nil, err
		}
		blocks[i].Timestamp = ts
	}

	return blocks, nil
}

// filterLogs fetches the logs of [from, to], halving the range when the node
// rejects it for returning too many results
func (s *logSource) filterLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{manageEntityTopic}},
	}

	var logs []types.Log
	err := s.retry(ctx, "eth_getLogs", func() error {
		var err error
		logs, err = s.client.FilterLogs(ctx, query)
		if isTooManyResultsError(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err == nil {
		return logs, nil
	}
	if !isTooManyResultsError(err) || from == to {
		return nil, fmt.Errorf("failed to get logs for range %d-%d: %w", from, to, err)
	}

	mid := from + (to-from)/2
	logger.WarnCtx(ctx, "Too many results, splitting range",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Uint64("mid", mid))

	left, err := s.filterLogs(ctx, from, mid)
	if err != nil {
		return nil, err
	}
	right, err := s.filterLogs(ctx, mid+1, to)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func (s *logSource) blockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	var header *types.Header
	err := s.retry(ctx, "eth_getBlockByNumber", func() error {
		var err error
		header, err = s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err == nil && header == nil {
			err = fmt.Errorf("block %d not found", number)
		}
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get header of block %d: %w", number, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil //nolint:gosec,G115
}

func (s *logSource) GetEntityManagerEventsForTx(ctx context.Context, txHash string) ([]domain.RawEvent, error) {
	var receipt *types.Receipt
	err := s.retry(ctx, "eth_getTransactionReceipt", func() error {
		var err error
		receipt, err = s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
		if errors.Is(err, ethereum.NotFound) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt of %s: %w", txHash, err)
	}

	var events []domain.RawEvent
	for _, vLog := range receipt.Logs {
		if vLog == nil || vLog.Address != s.contract || len(vLog.Topics) == 0 || vLog.Topics[0] != manageEntityTopic {
			continue
		}
		if event, ok := s.decodeLog(ctx, *vLog); ok {
			events = append(events, event)
		}
	}
	return events, nil
}

// decodeLog unpacks a ManageEntity log. Logs that cannot be unpacked are
// dropped with a warning.
func (s *logSource) decodeLog(ctx context.Context, vLog types.Log) (domain.RawEvent, bool) {
	event, err := DecodeManageEntity(vLog)
	if err != nil {
		logger.WarnCtx(ctx, "Dropping undecodable ManageEntity log",
			zap.String("tx_hash", vLog.TxHash.Hex()),
			zap.Uint("log_index", vLog.Index),
			zap.Error(err))
		return domain.RawEvent{}, false
	}
	return event, true
}

// DecodeManageEntity unpacks the data of a ManageEntity log
func DecodeManageEntity(vLog types.Log) (domain.RawEvent, error) {
	values := make(map[string]any)
	if err := parsedABI.UnpackIntoMap(values, manageEntityEvent, vLog.Data); err != nil {
		return domain.RawEvent{}, fmt.Errorf("failed to unpack log: %w", err)
	}

	userID, err := int64Field(values, "_userId")
	if err != nil {
		return domain.RawEvent{}, err
	}
	entityID, err := int64Field(values, "_entityId")
	if err != nil {
		return domain.RawEvent{}, err
	}
	signer, ok := values["_signer"].(common.Address)
	if !ok {
		return domain.RawEvent{}, fmt.Errorf("unexpected _signer value %T", values["_signer"])
	}
	entityType, _ := values["_entityType"].(string)
	metadata, _ := values["_metadata"].(string)
	action, _ := values["_action"].(string)

	return domain.RawEvent{
		EntityID:    entityID,
		EntityType:  entityType,
		UserID:      userID,
		Action:      action,
		Metadata:    metadata,
		Signer:      strings.ToLower(signer.Hex()),
		BlockHash:   vLog.BlockHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
		LogIndex:    vLog.Index,
	}, nil
}

func int64Field(values map[string]any, name string) (int64, error) {
	v, ok := values[name].(*big.Int)
	if !ok || v == nil {
		return 0, fmt.Errorf("unexpected %s value %T", name, values[name])
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("%s %s overflows int64", name, v.String())
	}
	return v.Int64(), nil
}

// isTooManyResultsError checks if the node rejected a log query for its size
func isTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, msg := range []string{
		"query returned more than",
		"too many results",
		"response size exceeded",
		"block range is too wide",
		"exceed maximum block range",
	} {
		if strings.Contains(errStr, msg) {
			return true
		}
	}
	return false
}
