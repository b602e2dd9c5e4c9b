package metadata_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/metadata"
	"github.com/feral-file/ff-entity-indexer/internal/mocks"
)

func TestFetcher_Fetch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		setupMocks  func(*mocks.MockHTTPClient)
		expected    string
		expectedErr string
	}{
		{
			name: "first gateway succeeds",
			setupMocks: func(m *mocks.MockHTTPClient) {
				m.EXPECT().GetBytes(ctx, "https://gw1.example/ipfs/QmTrack").Return([]byte(`{"title":"a"}`), nil)
			},
			expected: `{"title":"a"}`,
		},
		{
			name: "falls back to the next gateway",
			setupMocks: func(m *mocks.MockHTTPClient) {
				gomock.InOrder(
					m.EXPECT().GetBytes(ctx, "https://gw1.example/ipfs/QmTrack").Return(nil, errors.New("timeout")),
					m.EXPECT().GetBytes(ctx, "https://gw2.example/ipfs/QmTrack").Return([]byte(`{"title":"b"}`), nil),
				)
			},
			expected: `{"title":"b"}`,
		},
		{
			name: "invalid JSON counts as a failure",
			setupMocks: func(m *mocks.MockHTTPClient) {
				m.EXPECT().GetBytes(ctx, "https://gw1.example/ipfs/QmTrack").Return([]byte(`<html>`), nil)
				m.EXPECT().GetBytes(ctx, "https://gw2.example/ipfs/QmTrack").Return(nil, errors.New("not found"))
			},
			expectedErr: "failed to fetch metadata QmTrack from all gateways",
		},
		{
			name: "html error page reports its mime type",
			setupMocks: func(m *mocks.MockHTTPClient) {
				m.EXPECT().GetBytes(ctx, "https://gw1.example/ipfs/QmTrack").Return([]byte(`<!DOCTYPE html><html><body>rate limited</body></html>`), nil)
				m.EXPECT().GetBytes(ctx, "https://gw2.example/ipfs/QmTrack").Return([]byte(`<html><body>gone</body></html>`), nil)
			},
			expectedErr: "text/html",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			httpClient := mocks.NewMockHTTPClient(ctrl)
			tt.setupMocks(httpClient)

			f := metadata.NewFetcher(httpClient, []string{"https://gw1.example/", "https://gw2.example"}, 2)
			data, err := f.Fetch(ctx, "QmTrack")
			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestFetcher_FetchWithoutGateways(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := metadata.NewFetcher(mocks.NewMockHTTPClient(ctrl), nil, 0)
	_, err := f.Fetch(context.Background(), "QmTrack")
	require.Error(t, err)
}

func TestFetcher_Prefetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	httpClient := mocks.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().GetBytes(gomock.Any(), "https://gw.example/ipfs/QmA").Return([]byte(`{"n":1}`), nil)
	httpClient.EXPECT().GetBytes(gomock.Any(), "https://gw.example/ipfs/QmB").Return([]byte(`{"n":2}`), nil)
	httpClient.EXPECT().GetBytes(gomock.Any(), "https://gw.example/ipfs/QmMissing").Return(nil, errors.New("not found"))

	f := metadata.NewFetcher(httpClient, []string{"https://gw.example"}, 4)
	result, err := f.Prefetch(context.Background(), []string{"QmA", "QmB", "QmA", "", "QmMissing"})

	// Fetched documents are kept, the unreachable one is reported
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QmMissing")
	assert.Contains(t, err.Error(), "1 of 3")
	require.Len(t, result, 2)
	assert.JSONEq(t, `{"n":1}`, string(result["QmA"]))
	assert.JSONEq(t, `{"n":2}`, string(result["QmB"]))
}

func TestFetcher_PrefetchAllFetched(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	httpClient := mocks.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().GetBytes(gomock.Any(), "https://gw.example/ipfs/QmA").Return([]byte(`{"n":1}`), nil)

	f := metadata.NewFetcher(httpClient, []string{"https://gw.example"}, 4)
	result, err := f.Prefetch(context.Background(), []string{"QmA"})
	require.NoError(t, err)
	assert.Len(t, result, 1)

	result, err = f.Prefetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		cid     string
		data    string
		hasData bool
	}{
		{name: "empty", raw: ""},
		{name: "bare cid", raw: "QmTrack", cid: "QmTrack"},
		{name: "envelope with data", raw: `{"cid":"QmTrack","data":{"title":"a"}}`, cid: "QmTrack", data: `{"title":"a"}`, hasData: true},
		{name: "envelope with only cid", raw: `{"cid":"QmTrack"}`, cid: "QmTrack"},
		{name: "bare object", raw: `{"grantee_address":"0xabc"}`, data: `{"grantee_address":"0xabc"}`, hasData: true},
		{name: "broken json", raw: `{oops`, cid: `{oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := metadata.ParsePayload(tt.raw)
			assert.Equal(t, tt.cid, p.CID)
			if tt.hasData {
				assert.JSONEq(t, tt.data, string(p.Data))
			} else {
				assert.Empty(t, p.Data)
			}
		})
	}
}
