package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/mocks"
)

const contractAddress = "0x1cEFb9cbE4a9ba6d1A76B8Ea4d8C6b4Fc4B0f8b2"

var signer = common.HexToAddress("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")

func testConfig() Config {
	return Config{ContractAddress: contractAddress, MaxRetries: 2, RetryInterval: time.Millisecond}
}

func manageEntityLog(t *testing.T, block uint64, txIndex, logIndex uint, entityType, action string, entityID int64) types.Log {
	t.Helper()
	data, err := parsedABI.Events[manageEntityEvent].Inputs.NonIndexed().Pack(
		big.NewInt(7), signer, entityType, big.NewInt(entityID), `{"cid":"","data":{}}`, action,
	)
	require.NoError(t, err)
	return types.Log{
		Address:     common.HexToAddress(contractAddress),
		Topics:      []common.Hash{manageEntityTopic},
		Data:        data,
		BlockNumber: block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
		TxHash:      common.BigToHash(big.NewInt(int64(block*1000) + int64(txIndex))), //nolint:gosec,G115
		TxIndex:     txIndex,
		Index:       logIndex,
	}
}

func header(block uint64) *types.Header {
	return &types.Header{Number: new(big.Int).SetUint64(block), Time: 1_700_000_000 + block}
}

func TestNewLogSource_InvalidAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, err := NewLogSource(Config{ContractAddress: "not-an-address"}, mocks.NewMockEthClient(ctrl))
	require.Error(t, err)
}

func TestDecodeManageEntity(t *testing.T) {
	vLog := manageEntityLog(t, 10, 0, 3, "Track", "Create", 2_000_001)

	event, err := DecodeManageEntity(vLog)
	require.NoError(t, err)
	assert.Equal(t, int64(7), event.UserID)
	assert.Equal(t, int64(2_000_001), event.EntityID)
	assert.Equal(t, "Track", event.EntityType)
	assert.Equal(t, "Create", event.Action)
	assert.Equal(t, `{"cid":"","data":{}}`, event.Metadata)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", event.Signer)
	assert.Equal(t, uint64(10), event.BlockNumber)
	assert.Equal(t, uint(3), event.LogIndex)

	_, err = DecodeManageEntity(types.Log{Data: []byte{0x01}})
	assert.Error(t, err)
}

func TestLogSource_FetchBlocks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mocks.NewMockEthClient(ctrl)

	logs := []types.Log{
		manageEntityLog(t, 12, 0, 0, "User", "Create", 1),
		manageEntityLog(t, 11, 1, 4, "Follow", "Create", 2),
		manageEntityLog(t, 11, 0, 1, "Track", "Create", 3),
		manageEntityLog(t, 11, 1, 3, "Save", "Create", 4),
		{Removed: true, BlockNumber: 11, TxIndex: 2},
		{Address: common.HexToAddress(contractAddress), BlockNumber: 12, TxIndex: 1, Data: []byte{0x01}},
	}

	client.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			assert.Equal(t, uint64(10), q.FromBlock.Uint64())
			assert.Equal(t, uint64(20), q.ToBlock.Uint64())
			assert.Equal(t, []common.Address{common.HexToAddress(contractAddress)}, q.Addresses)
			assert.Equal(t, [][]common.Hash{{ManageEntityTopic()}}, q.Topics)
			return logs, nil
		})
	client.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(11)).Return(header(11), nil)
	client.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(12)).Return(header(12), nil)

	src, err := NewLogSource(testConfig(), client)
	require.NoError(t, err)

	blocks, err := src.FetchBlocks(context.Background(), 10, 20)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, uint64(11), blocks[0].Number)
	assert.Equal(t, time.Unix(1_700_000_011, 0).UTC(), blocks[0].Timestamp)
	require.Len(t, blocks[0].Transactions, 2)
	assert.Equal(t, uint(0), blocks[0].Transactions[0].Index)
	require.Len(t, blocks[0].Transactions[0].Events, 1)
	assert.Equal(t, "Track", blocks[0].Transactions[0].Events[0].EntityType)
	require.Len(t, blocks[0].Transactions[1].Events, 2)
	assert.Equal(t, "Save", blocks[0].Transactions[1].Events[0].EntityType)
	assert.Equal(t, "Follow", blocks[0].Transactions[1].Events[1].EntityType)

	assert.Equal(t, uint64(12), blocks[1].Number)
	require.Len(t, blocks[1].Transactions, 1)
	assert.Equal(t, "User", blocks[1].Transactions[0].Events[0].EntityType)
}

func TestLogSource_FetchBlocksRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mocks.NewMockEthClient(ctrl)

	gomock.InOrder(
		client.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset")),
		client.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).Return([]types.Log{manageEntityLog(t, 5, 0, 0, "User", "Create", 1)}, nil),
	)
	client.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(5)).Return(header(5), nil)

	src, err := NewLogSource(testConfig(), client)
	require.NoError(t, err)

	blocks, err := src.FetchBlocks(context.Background(), 5, 5)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
}

func TestLogSource_FetchBlocksGivesUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mocks.NewMockEthClient(ctrl)

	// One attempt plus MaxRetries retries
	client.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset")).Times(3)

	src, err := NewLogSource(testConfig(), client)
	require.NoError(t, err)

	_, err = src.FetchBlocks(context.Background(), 1, 2)
	require.Error(t, err)
}

func TestLogSource_FetchBlocksSplitsLargeRanges(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mocks.NewMockEthClient(ctrl)

	client.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
			if to-from > 1 {
				return nil, errors.New("query returned more than 10000 results")
			}
			var logs []types.Log
			for b := from; b <= to; b++ {
				logs = append(logs, manageEntityLog(t, b, 0, 0, "User", "Update", int64(b))) //nolint:gosec,G115
			}
			return logs, nil
		}).AnyTimes()
	client.EXPECT().HeaderByNumber(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n *big.Int) (*types.Header, error) {
			return header(n.Uint64()), nil
		}).Times(8)

	src, err := NewLogSource(testConfig(), client)
	require.NoError(t, err)

	blocks, err := src.FetchBlocks(context.Background(), 1, 8)
	require.NoError(t, err)
	require.Len(t, blocks, 8)
	for i, b := range blocks {
		assert.Equal(t, uint64(i+1), b.Number) //nolint:gosec,G115
	}
}

func TestLogSource_LatestBlock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mocks.NewMockEthClient(ctrl)
	client.EXPECT().BlockNumber(gomock.Any()).Return(uint64(42), nil)

	src, err := NewLogSource(testConfig(), client)
	require.NoError(t, err)

	latest, err := src.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), latest)
}

func TestLogSource_GetEntityManagerEventsForTx(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mocks.NewMockEthClient(ctrl)

	own := manageEntityLog(t, 9, 0, 0, "Playlist", "Create", 5)
	foreign := manageEntityLog(t, 9, 0, 1, "Playlist", "Create", 6)
	foreign.Address = common.HexToAddress("0x0000000000000000000000000000000000000001")
	otherTopic := manageEntityLog(t, 9, 0, 2, "Playlist", "Create", 7)
	otherTopic.Topics = []common.Hash{common.HexToHash("0x01")}

	txHash := own.TxHash.Hex()
	client.EXPECT().TransactionReceipt(gomock.Any(), own.TxHash).Return(&types.Receipt{
		Logs: []*types.Log{&own, &foreign, &otherTopic, nil},
	}, nil)

	src, err := NewLogSource(testConfig(), client)
	require.NoError(t, err)

	events, err := src.GetEntityManagerEventsForTx(context.Background(), txHash)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(5), events[0].EntityID)

	client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, ethereum.NotFound)
	_, err = src.GetEntityManagerEventsForTx(context.Background(), "0x02")
	require.ErrorIs(t, err, ethereum.NotFound)
}

func TestIsTooManyResultsError(t *testing.T) {
	assert.False(t, isTooManyResultsError(nil))
	assert.False(t, isTooManyResultsError(errors.New("connection reset")))
	assert.True(t, isTooManyResultsError(errors.New("query returned more than 10000 results")))
	assert.True(t, isTooManyResultsError(errors.New("Log response size exceeded")))
}
