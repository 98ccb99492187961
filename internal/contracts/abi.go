package contracts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"statsScope/internal/chain"
	"statsScope/internal/model"
)

const lotteryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "buyer", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "roundId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256[]", "name": "ticketIds", "type": "uint256[]"}
    ],
    "name": "TicketsPurchased",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "winner", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "roundId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "PrizeClaimed",
    "type": "event"
  }
]`

const oracleABIJSON = `[
  {
    "inputs": [],
    "name": "latestRoundData",
    "outputs": [
      {"internalType": "uint80", "name": "roundId", "type": "uint80"},
      {"internalType": "int256", "name": "answer", "type": "int256"},
      {"internalType": "uint256", "name": "startedAt", "type": "uint256"},
      {"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
      {"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "decimals",
    "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	lotteryABI     abi.ABI
	lotteryABIOnce sync.Once
	lotteryABIErr  error

	oracleABI     abi.ABI
	oracleABIOnce sync.Once
	oracleABIErr  error
)

// LotteryABI returns the parsed lottery event ABI.
func LotteryABI() (abi.ABI, error) {
	lotteryABIOnce.Do(func() {
		lotteryABI, lotteryABIErr = abi.JSON(strings.NewReader(lotteryABIJSON))
	})
	return lotteryABI, lotteryABIErr
}

// OracleABI returns the parsed price feed ABI.
func OracleABI() (abi.ABI, error) {
	oracleABIOnce.Do(func() {
		oracleABI, oracleABIErr = abi.JSON(strings.NewReader(oracleABIJSON))
	})
	return oracleABI, oracleABIErr
}

// LotteryFilter builds the event filter for one lottery event.
func LotteryFilter(lottery common.Address, eventName string) (chain.EventFilter, error) {
	parsed, err := LotteryABI()
	if err != nil {
		return chain.EventFilter{}, fmt.Errorf("parse lottery abi: %w", err)
	}
	event, ok := parsed.Events[eventName]
	if !ok {
		return chain.EventFilter{}, fmt.Errorf("unknown lottery event %s", eventName)
	}
	return chain.EventFilter{
		Name:      eventName,
		Addresses: []common.Address{lottery},
		Topics:    [][]common.Hash{{event.ID}},
		Event:     &event,
	}, nil
}

// TicketsPurchasedFilter selects ticket purchase logs.
func TicketsPurchasedFilter(lottery common.Address) (chain.EventFilter, error) {
	return LotteryFilter(lottery, model.EventTicketsPurchased)
}

// PrizeClaimedFilter selects prize payout logs.
func PrizeClaimedFilter(lottery common.Address) (chain.EventFilter, error) {
	return LotteryFilter(lottery, model.EventPrizeClaimed)
}
