package database

import (
	"errors"
	"fmt"

	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
)

// ErrEmptyChain is returned when a chain operation is asked to work on a
// chain with no blocks at all.
var ErrEmptyChain = errors.New("chain has no blocks")

// ValidateChain walks the full chain from the genesis block forward and
// returns the first violation found.
func ValidateChain(chain []Block, g genesis.Genesis) error {
	idx, err := FirstInvalid(chain, g)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return fmt.Errorf("chain invalid at block %d", idx)
	}

	return nil
}

// FirstInvalid returns the index of the first block that fails validation,
// or -1 when the whole chain is consistent. The index lets repair code
// truncate at exactly the point of corruption.
func FirstInvalid(chain []Block, g genesis.Genesis) (int, error) {
	if len(chain) == 0 {
		return -1, ErrEmptyChain
	}

	if err := chain[0].ValidateGenesis(); err != nil {
		return 0, nil
	}

	for i := 1; i < len(chain); i++ {
		reward := g.RewardAt(chain[i].Index)
		if err := chain[i].ValidateAgainst(chain[i-1], reward); err != nil {
			return i, nil
		}
	}

	return -1, nil
}

// CommonAncestor locates the most recent block the two chains share,
// comparing by hash. It returns the index into each chain, or -1, -1 when
// the chains share no history at all.
func CommonAncestor(a []Block, b []Block) (int, int) {
	bByHash := make(map[string]int, len(b))
	for i, blk := range b {
		bByHash[blk.Hash] = i
	}

	for i := len(a) - 1; i >= 0; i-- {
		if j, ok := bByHash[a[i].Hash]; ok {
			return i, j
		}
	}

	return -1, -1
}
