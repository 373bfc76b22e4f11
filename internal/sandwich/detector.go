// Package sandwich implements the Sandwich Detector (§4.8): it groups
// packed swap candidates by token pair over a sliding time window and
// flags the classic front-run/victim/back-run triple shape.
package sandwich

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cdrn/memepool/internal/model"
)

const (
	// window is the sliding time window over which swap candidates are
	// grouped by token pair (§4.8).
	window = 2 * time.Second
	// minGroupSize is the minimum number of same-pair swaps required
	// before a triple is even considered.
	minGroupSize = 3
	// minVictimValueWei is the minimum native value (wei) the victim leg
	// must carry to qualify as a sandwich target, expressed as 0.1 ETH.
)

var minVictimValueWei = func() *big.Int {
	v, _ := new(big.Int).SetString("100000000000000000", 10) // 0.1 ETH
	return v
}()

// Candidate is one packed, swap-typed transaction considered for
// grouping. Only txs the Packer already classified as swaps are passed
// in; everything else is irrelevant to sandwich detection.
type Candidate struct {
	Tx        *model.PendingTx
	Pair      [2]common.Address // token pair extracted from calldata offsets
	EffFee    *big.Int
}

// TokenPairFromCalldata extracts the token-pair key from fixed calldata
// offsets (bytes 17..36 and 49..68, i.e. 20-byte slices starting one byte
// past the address position of the 1st and 2nd 32-byte argument words
// after the 4-byte selector) per §4.8. This fixed-offset heuristic is a
// known approximation — see DESIGN.md's Open Question discussion — it
// matches common Uniswap-V2-shaped router calldata but will mis-group
// calldata with a different argument layout.
func TokenPairFromCalldata(calldata []byte) ([2]common.Address, bool) {
	var pair [2]common.Address
	if len(calldata) < 69 {
		return pair, false
	}
	copy(pair[0][:], calldata[17:37])
	copy(pair[1][:], calldata[49:69])
	if pair[0] == (common.Address{}) || pair[1] == (common.Address{}) {
		return pair, false
	}
	return pair, true
}

// Triple is a detected (or candidate) sandwich: front-run, victim, back-run.
type Triple struct {
	FrontRun common.Hash
	Victim   common.Hash
	BackRun  common.Hash
}

// Detect scans candidates (already ordered by the Packer's fee-descending
// order, with FirstSeen timestamps preserved) and returns the sandwich
// triples it finds (§4.8, P6).
func Detect(candidates []Candidate) []Triple {
	groups := groupByPair(candidates)

	var triples []Triple
	for _, group := range groups {
		triples = append(triples, detectInGroup(group)...)
	}
	return triples
}

func groupByPair(candidates []Candidate) [][]Candidate {
	index := make(map[[2]common.Address]int)
	var groups [][]Candidate

	for _, c := range candidates {
		key := normalizedPair(c.Pair)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}

	filtered := groups[:0]
	for _, g := range groups {
		if len(g) >= minGroupSize {
			filtered = append(filtered, g)
		}
	}
	return filtered
}

// normalizedPair orders the pair so (A,B) and (B,A) group together.
func normalizedPair(p [2]common.Address) [2]common.Address {
	if bytesLess(p[1][:], p[0][:]) {
		return [2]common.Address{p[1], p[0]}
	}
	return p
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// detectInGroup finds >=3-member clusters within the sliding time window,
// then within each cluster sorts by effective priority fee descending
// (§4.8) before picking roles: the highest-fee member is the front-run,
// the lowest-fee member is the back-run, and any fee-interior member that
// clears the victim value threshold is a candidate victim, bracketed by
// its cluster's front-run/back-run.
func detectInGroup(group []Candidate) []Triple {
	byTime := append([]Candidate(nil), group...)
	sort.Slice(byTime, func(i, j int) bool {
		return byTime[i].Tx.FirstSeen.Before(byTime[j].Tx.FirstSeen)
	})

	var triples []Triple
	for i := 0; i < len(byTime); i++ {
		windowEnd := i
		for windowEnd+1 < len(byTime) && byTime[windowEnd+1].Tx.FirstSeen.Sub(byTime[i].Tx.FirstSeen) <= window {
			windowEnd++
		}
		if windowEnd-i+1 < minGroupSize {
			continue
		}

		members := append([]Candidate(nil), byTime[i:windowEnd+1]...)
		sort.SliceStable(members, func(a, b int) bool {
			return feeCmp(members[a].EffFee, members[b].EffFee) > 0
		})

		frontRun := members[0]
		backRun := members[len(members)-1]
		for j := 1; j < len(members)-1; j++ {
			victim := members[j]
			if victim.Tx.Value == nil || victim.Tx.Value.Cmp(minVictimValueWei) < 0 {
				continue
			}
			triples = append(triples, Triple{
				FrontRun: frontRun.Tx.Hash,
				Victim:   victim.Tx.Hash,
				BackRun:  backRun.Tx.Hash,
			})
		}
	}
	return triples
}

// feeCmp compares two effective priority fees, treating a nil fee (a
// candidate the Packer never annotated with one) as zero.
func feeCmp(a, b *big.Int) int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	return a.Cmp(b)
}
