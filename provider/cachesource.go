package provider

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/whalewatch/holdercache"
)

// CacheSource serves holder sets out of the local store. With a positive
// MaxAge it acts as the preferred source for fresh documents; with zero
// it is the last-resort backup that accepts any age.
type CacheSource struct {
	Store  *holdercache.Store
	MaxAge time.Duration
}

// Name implements Source.
func (c *CacheSource) Name() string { return "cache" }

// Fetch implements Source. Cached documents were ranked and filtered when
// written, so entries only need re-clamping to the current TopN.
func (c *CacheSource) Fetch(ctx context.Context, ref TokenRef) ([]Holder, error) {
	doc, ok := c.Store.Load(ref.ChainID, ref.Address, c.MaxAge)
	if !ok || len(doc.Holders) == 0 {
		return nil, ErrCacheMiss
	}
	holders := make([]Holder, 0, len(doc.Holders))
	for _, h := range doc.Holders {
		if h.Rank > ref.TopN {
			continue
		}
		holders = append(holders, Holder{
			Address: common.HexToAddress(h.Address),
			Rank:    h.Rank,
			Balance: h.Balance,
		})
	}
	if len(holders) == 0 {
		return nil, ErrCacheMiss
	}
	return holders, nil
}
