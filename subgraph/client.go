// Package subgraph reads transfer state from per-chain graph-node
// deployments. The gate answers sync and enumeration queries; the poller
// turns status changes into mux events.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"transferkit/types"
)

// Client is a GraphQL client for one subgraph endpoint. The HTTP client is
// shared so connections are pooled across polls.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

const (
	syncedBlockQuery = `
		query SyncedBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	transactionFields = `
		transactionId
		status
		chainId
		user {
			id
		}
		router {
			id
		}
		initiator
		receivingChainTxManagerAddress
		sendingAssetId
		receivingAssetId
		sendingChainFallback
		callTo
		receivingAddress
		callDataHash
		sendingChainId
		receivingChainId
		amount
		expiry
		preparedBlockNumber
		encryptedCallData
		encodedBid
		bidSignature
		prepareCaller
		fulfillCaller
		cancelCaller
		fulfillTransactionHash
		cancelTransactionHash
		relayerFee
		signature
		callData
	`

	userTransactionsQuery = `
		query GetUserTransactions($user: String!, $status: TransactionStatus!) {
			transactions(where: { user: $user, status: $status }, orderBy: preparedBlockNumber, orderDirection: desc) {
				%s
			}
		}
	`
)

// Subgraph transaction statuses.
const (
	sgPrepared  = "Prepared"
	sgFulfilled = "Fulfilled"
	sgCancelled = "Cancelled"
)

type gqlRequest struct {
	Query     string      `json:"query"`
	Variables interface{} `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data struct {
		Meta struct {
			Block struct {
				Number uint64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
		Transactions []subgraphTransaction `json:"transactions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type entityRef struct {
	ID string `json:"id"`
}

// subgraphTransaction mirrors the Transaction entity. Numeric fields arrive
// as decimal strings.
type subgraphTransaction struct {
	TransactionId                  string    `json:"transactionId"`
	Status                         string    `json:"status"`
	ChainId                        string    `json:"chainId"`
	User                           entityRef `json:"user"`
	Router                         entityRef `json:"router"`
	Initiator                      string    `json:"initiator"`
	ReceivingChainTxManagerAddress string    `json:"receivingChainTxManagerAddress"`
	SendingAssetId                 string    `json:"sendingAssetId"`
	ReceivingAssetId               string    `json:"receivingAssetId"`
	SendingChainFallback           string    `json:"sendingChainFallback"`
	CallTo                         string    `json:"callTo"`
	ReceivingAddress               string    `json:"receivingAddress"`
	CallDataHash                   string    `json:"callDataHash"`
	SendingChainId                 string    `json:"sendingChainId"`
	ReceivingChainId               string    `json:"receivingChainId"`
	Amount                         string    `json:"amount"`
	Expiry                         string    `json:"expiry"`
	PreparedBlockNumber            string    `json:"preparedBlockNumber"`
	EncryptedCallData              string    `json:"encryptedCallData"`
	EncodedBid                     string    `json:"encodedBid"`
	BidSignature                   string    `json:"bidSignature"`
	PrepareCaller                  string    `json:"prepareCaller"`
	FulfillCaller                  string    `json:"fulfillCaller"`
	CancelCaller                   string    `json:"cancelCaller"`
	FulfillTransactionHash         string    `json:"fulfillTransactionHash"`
	CancelTransactionHash          string    `json:"cancelTransactionHash"`
	RelayerFee                     string    `json:"relayerFee"`
	Signature                      string    `json:"signature"`
	CallData                       string    `json:"callData"`
}

func (c *Client) fetch(ctx context.Context, query string, variables interface{}) (*gqlResponse, error) {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: unexpected status %d", c.endpoint, resp.StatusCode)
	}

	var result gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("graphql errors: %v", result.Errors)
	}
	return &result, nil
}

// SyncedBlock returns the highest block the subgraph has indexed.
func (c *Client) SyncedBlock(ctx context.Context) (uint64, error) {
	result, err := c.fetch(ctx, syncedBlockQuery, nil)
	if err != nil {
		return 0, err
	}
	return result.Data.Meta.Block.Number, nil
}

// UserTransactionsByStatus lists the user's transactions in the given
// subgraph status.
func (c *Client) UserTransactionsByStatus(ctx context.Context, user common.Address, status string) ([]subgraphTransaction, error) {
	query := fmt.Sprintf(userTransactionsQuery, transactionFields)
	variables := map[string]interface{}{
		"user":   toLowerHex(user),
		"status": status,
	}
	result, err := c.fetch(ctx, query, variables)
	if err != nil {
		return nil, err
	}
	return result.Data.Transactions, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

func toLowerHex(a common.Address) string {
	return "0x" + common.Bytes2Hex(a.Bytes())
}

func (t subgraphTransaction) toTxData() (types.TransactionData, error) {
	sendingChainId, err := parseUintField("sendingChainId", t.SendingChainId)
	if err != nil {
		return types.TransactionData{}, err
	}
	receivingChainId, err := parseUintField("receivingChainId", t.ReceivingChainId)
	if err != nil {
		return types.TransactionData{}, err
	}
	expiry, err := parseUintField("expiry", t.Expiry)
	if err != nil {
		return types.TransactionData{}, err
	}
	preparedBlock, err := parseUintField("preparedBlockNumber", t.PreparedBlockNumber)
	if err != nil {
		return types.TransactionData{}, err
	}

	return types.TransactionData{
		InvariantTransactionData: types.InvariantTransactionData{
			ReceivingChainTxManagerAddress: common.HexToAddress(t.ReceivingChainTxManagerAddress),
			User:                           common.HexToAddress(t.User.ID),
			Router:                         common.HexToAddress(t.Router.ID),
			Initiator:                      common.HexToAddress(t.Initiator),
			SendingAssetId:                 common.HexToAddress(t.SendingAssetId),
			ReceivingAssetId:               common.HexToAddress(t.ReceivingAssetId),
			SendingChainFallback:           common.HexToAddress(t.SendingChainFallback),
			CallTo:                         common.HexToAddress(t.CallTo),
			ReceivingAddress:               common.HexToAddress(t.ReceivingAddress),
			SendingChainId:                 sendingChainId,
			ReceivingChainId:               receivingChainId,
			CallDataHash:                   common.HexToHash(t.CallDataHash),
			TransactionId:                  common.HexToHash(t.TransactionId),
		},
		Amount:              t.Amount,
		Expiry:              expiry,
		PreparedBlockNumber: preparedBlock,
	}, nil
}

func (t subgraphTransaction) bidSignatureBytes() hexutil.Bytes {
	if t.BidSignature == "" {
		return nil
	}
	sig, err := hexutil.Decode(t.BidSignature)
	if err != nil {
		return nil
	}
	return sig
}

func parseUintField(name, value string) (uint64, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, value, err)
	}
	return n, nil
}
