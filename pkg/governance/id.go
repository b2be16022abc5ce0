package governance

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ProposalID derives the identifier of the proposal proposer creates as the
// sequence-th registry entry at createdAt. Sequence numbers never repeat, so
// neither do identifiers.
func ProposalID(proposer common.Address, sequence uint64, createdAt time.Time) common.Hash {
	seq := common.BigToHash(new(big.Int).SetUint64(sequence))
	ts := common.BigToHash(big.NewInt(createdAt.UnixNano()))
	return crypto.Keccak256Hash(proposer.Bytes(), seq.Bytes(), ts.Bytes())
}
