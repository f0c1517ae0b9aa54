// Copyright 2025 The whalewatch Authors
// This file is part of the whalewatch library.
//
// The whalewatch library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The whalewatch library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the whalewatch library. If not, see <http://www.gnu.org/licenses/>.

package params

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Wire constants of the ERC-20 Transfer event.
var (
	// TransferTopic is keccak256("Transfer(address,address,uint256)"),
	// topic-0 of every ERC-20 Transfer log.
	TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

	// ZeroAddress marks mints when it appears as the sender.
	ZeroAddress = common.Address{}

	// DeadAddress is the conventional burn sink.
	DeadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

// IgnoreList holds addresses that are never admitted into a whale set.
var IgnoreList = map[common.Address]bool{
	ZeroAddress: true,
	DeadAddress: true,
}

// Default intervals and limits. All of these are overridable from the
// config file; the values mirror the deployment the monitor was tuned on.
const (
	DefaultBlockPollInterval    = 3 * time.Second
	DefaultWhaleRefreshInterval = 30 * time.Minute
	DefaultPriceRefreshInterval = time.Minute
	DefaultStatusPrintInterval  = 5 * time.Minute

	// RefreshTick is the wake-up period of the refresh scheduler; per-token
	// refresh due times are checked against it.
	RefreshTick = 10 * time.Second

	DefaultRPCTimeout  = 30 * time.Second
	DefaultHTTPTimeout = 10 * time.Second

	DefaultMaxRetries           = 5
	DefaultBaseRetryDelay       = time.Second
	DefaultMaxConsecutiveErrors = 10

	DefaultTopN         = 100
	DefaultThresholdUSD = 100.0

	// DefaultTxCacheSize bounds the processed-transaction dedup window.
	DefaultTxCacheSize = 10000

	// ProviderPageMax is the largest holder page either upstream will serve.
	ProviderPageMax = 100

	// HeartbeatInterval and StaleChainAfter govern poll-loop liveness logging.
	HeartbeatInterval = time.Minute
	StaleChainAfter   = 3 * time.Minute
)
