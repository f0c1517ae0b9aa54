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

// Package alert classifies whale transfer events into operator-facing
// messages and delivers them to the messaging sink.
package alert

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind is the classification of a whale transfer.
type Kind string

const (
	KindBuy  Kind = "buy"
	KindSell Kind = "sell"
	KindMint Kind = "mint"
	KindBurn Kind = "burn"
)

// Glyph returns the marker prefixed to messages of this kind.
func (k Kind) Glyph() string {
	switch k {
	case KindBuy:
		return "🟢"
	case KindSell:
		return "🔴"
	case KindMint:
		return "🆕"
	case KindBurn:
		return "🔥"
	default:
		return "🚨"
	}
}

// Verb returns the action line of this kind.
func (k Kind) Verb() string {
	switch k {
	case KindBuy:
		return "Accumulate (Buy/In)"
	case KindSell:
		return "Reduce (Sell/Out)"
	case KindMint:
		return "Mint Received"
	case KindBurn:
		return "Burn"
	default:
		return "Transfer"
	}
}

// Record is one classified whale transfer, ephemeral and never persisted.
type Record struct {
	Token     common.Address
	Symbol    string
	Chain     string // chain key
	ChainName string // display name
	Explorer  string // explorer base URL
	Whale     common.Address
	Rank      int
	Kind      Kind
	Amount    *big.Float // token units, decimals already applied
	USDValue  float64
	Price     float64
	TxHash    common.Hash
	Block     uint64
}

// Format renders the Markdown alert message for the messaging sink.
func Format(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *Whale Alert (Rank #%d)*\n", r.Kind.Glyph(), r.Rank)
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "*Action:* %s %s\n", r.Kind.Glyph(), r.Kind.Verb())
	fmt.Fprintf(&b, "*Token:* `%s` %s\n", FormatAmount(r.Amount), r.Symbol)
	fmt.Fprintf(&b, "*Value:* `$%s`\n", groupThousands(fmt.Sprintf("%.2f", r.USDValue)))
	fmt.Fprintf(&b, "*Address:* `%s`\n", ShortAddress(r.Whale))
	fmt.Fprintf(&b, "*Price:* `$%s`\n", FormatPrice(r.Price))
	fmt.Fprintf(&b, "*Chain:* %s\n", r.ChainName)
	fmt.Fprintf(&b, "*Block:* `%d`\n", r.Block)
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "[📊 Tx](%s/tx/%s) | [👤 Address](%s/address/%s)",
		r.Explorer, r.TxHash.Hex(), r.Explorer, r.Whale.Hex())
	return b.String()
}

// FormatAmount renders a token amount with K/M/B suffixes at 10³, 10⁶
// and 10⁹.
func FormatAmount(amount *big.Float) string {
	if amount == nil {
		return "0"
	}
	f, _ := amount.Float64()
	switch {
	case f >= 1e9:
		return fmt.Sprintf("%.2fB", f/1e9)
	case f >= 1e6:
		return fmt.Sprintf("%.2fM", f/1e6)
	case f >= 1e3:
		return fmt.Sprintf("%.2fK", f/1e3)
	default:
		return fmt.Sprintf("%.2f", f)
	}
}

// FormatPrice adapts precision to magnitude so micro-cap prices stay
// readable: ≥1 → 4dp, ≥1e-4 → 6dp, below → 10dp.
func FormatPrice(p float64) string {
	switch {
	case p >= 1:
		return fmt.Sprintf("%.4f", p)
	case p >= 1e-4:
		return fmt.Sprintf("%.6f", p)
	default:
		return fmt.Sprintf("%.10f", p)
	}
}

// ShortAddress renders the conventional 0x123456...abcdef form.
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:8] + "..." + hex[len(hex)-6:]
}

// groupThousands inserts comma separators into the integer part of an
// already formatted decimal.
func groupThousands(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if neg {
		out = "-" + out
	}
	if hasFrac {
		out += "." + frac
	}
	return out
}
