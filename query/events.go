// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package query

import (
	"context"
	"fmt"
	"strconv"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
)

// EventFilter narrows the events() scan (spec §4.8, "events(filter,
// pagination)"). FromBlock/ToBlock default to the full chain when nil.
// Address nil matches any contract. Keys follows the Starknet convention:
// Keys[i] is the set of values accepted at key position i, an empty set at
// a position matching any value there, and positions beyond len(Keys) are
// unconstrained.
type EventFilter struct {
	FromBlock *uint64
	ToBlock   *uint64
	Address   *felt.ContractAddress
	Keys      [][]felt.Felt
}

// EventRecord pairs one matched event with the identifiers needed to locate
// it (spec §4.8).
type EventRecord struct {
	chain.Event
	BlockNumber     uint64
	BlockHash       felt.BlockHash
	TransactionHash felt.TxHash
}

// EventsPage is one page of a filtered event scan. ContinuationToken is
// empty once the scan has exhausted the filtered set.
type EventsPage struct {
	Events            []EventRecord
	ContinuationToken string
}

// Events scans sealed blocks [filter.FromBlock, filter.ToBlock] in order,
// collecting events matching filter into pages of at most chunkSize.
// continuationToken, when non-empty, is an opaque absolute index into the
// full filtered sequence to resume from (spec §4.8, "an opaque continuation
// token carrying only an absolute event index within the filtered set").
// Because the token carries no cursor state beyond that index, resuming is
// idempotent: the same token always resumes at the same logical position
// regardless of how many times it is used, and a full re-scan from index 0
// reproduces exactly the same partition into pages for a fixed chunkSize.
func (f *Facade) Events(ctx context.Context, filter EventFilter, continuationToken string, chunkSize int) (EventsPage, error) {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	startIndex, err := decodeEventToken(continuationToken)
	if err != nil {
		return EventsPage{}, err
	}

	from := uint64(0)
	if filter.FromBlock != nil {
		from = *filter.FromBlock
	}
	tip, err := f.BlockNumber(ctx)
	if err != nil {
		return EventsPage{}, err
	}
	to := tip
	if filter.ToBlock != nil && *filter.ToBlock < to {
		to = *filter.ToBlock
	}

	var page []EventRecord
	index := uint64(0)
	for n := from; n <= to; n++ {
		block, err := f.provider.BlockByNumber(ctx, n)
		if err != nil {
			return EventsPage{}, fmt.Errorf("query: scanning block %d for events: %w", n, err)
		}
		blockHash := block.Header.BlockHash()
		for _, tx := range block.Body {
			receipt, err := f.provider.ReceiptByTxHash(ctx, tx.Hash)
			if err != nil {
				return EventsPage{}, fmt.Errorf("query: receipt for tx %s: %w", tx.Hash.Felt(), err)
			}
			for _, ev := range receipt.Events {
				if !eventMatches(ev, filter) {
					continue
				}
				if index >= startIndex && len(page) < chunkSize {
					page = append(page, EventRecord{
						Event:           ev,
						BlockNumber:     n,
						BlockHash:       blockHash,
						TransactionHash: tx.Hash,
					})
				}
				index++
			}
		}
	}

	next := startIndex + uint64(len(page))
	token := ""
	if next < index {
		token = strconv.FormatUint(next, 10)
	}
	return EventsPage{Events: page, ContinuationToken: token}, nil
}

func eventMatches(ev chain.Event, filter EventFilter) bool {
	if filter.Address != nil && ev.FromAddress.Cmp(*filter.Address) != 0 {
		return false
	}
	for i, accepted := range filter.Keys {
		if len(accepted) == 0 {
			continue
		}
		if i >= len(ev.Keys) {
			return false
		}
		matched := false
		for _, want := range accepted {
			if want.Equal(ev.Keys[i]) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func decodeEventToken(token string) (uint64, error) {
	if token == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("query: malformed continuation token %q: %w", token, err)
	}
	return n, nil
}
