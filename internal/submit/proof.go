package submit

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Commitment is the tuple the admin proof attests to (§4.4 step 3):
// that the included outgoing-call results are exactly what real L1
// state produced for the given prevL2Root/tx pairing. Spec treats the
// underlying proof system as an abstracted oracle; this repo's
// concrete choice is an admin ECDSA signature over this tuple, with a
// zk/TEE oracle left as a drop-in alternative implementation of the
// same interfaces below.
type Commitment struct {
	L2BlockNumber   uint64
	PrevL2Root      common.Hash
	RLPEncodedTx    []byte
	OutgoingCalls   []common.Hash // CallKey per call, in order
	OutgoingResults [][]byte
}

// Hash returns the Keccak256 digest the signature is computed over.
func (c Commitment) Hash() common.Hash {
	buf := make([]byte, 0, 8+32+len(c.RLPEncodedTx))
	buf = append(buf, new(big.Int).SetUint64(c.L2BlockNumber).Bytes()...)
	buf = append(buf, c.PrevL2Root.Bytes()...)
	buf = append(buf, c.RLPEncodedTx...)
	for i, key := range c.OutgoingCalls {
		buf = append(buf, key.Bytes()...)
		buf = append(buf, c.OutgoingResults[i]...)
	}
	return crypto.Keccak256Hash(buf)
}

// ProofSigner produces a proof attesting to a Commitment. The concrete
// AdminSigner implementation below signs with a held ECDSA key; a
// future zk-SNARK or TEE attestation oracle would satisfy the same
// interface without any caller change (spec.md's own scoping of that
// substitution).
type ProofSigner interface {
	Sign(c Commitment) ([]byte, error)
}

// ProofVerifier checks a proof against a Commitment, the counterpart
// the L1 rollup contract performs on-chain (out of this repo's scope
// to implement, since that's Solidity) and that this repo's own tests
// perform to validate a ProofSigner end-to-end.
type ProofVerifier interface {
	Verify(c Commitment, proof []byte) (bool, error)
}

// AdminSigner is the ECDSA-backed ProofSigner/ProofVerifier: the admin
// key's signature over Commitment.Hash() is the proof, exactly the
// shape `crypto.Sign`/`crypto.SigToPub` expect.
type AdminSigner struct {
	key *ecdsa.PrivateKey
}

func NewAdminSigner(key *ecdsa.PrivateKey) *AdminSigner {
	return &AdminSigner{key: key}
}

func (a *AdminSigner) Sign(c Commitment) ([]byte, error) {
	sig, err := crypto.Sign(c.Hash().Bytes(), a.key)
	if err != nil {
		return nil, fmt.Errorf("submit: sign commitment: %w", err)
	}
	return sig, nil
}

func (a *AdminSigner) Verify(c Commitment, proof []byte) (bool, error) {
	return VerifyAdminSignature(crypto.PubkeyToAddress(a.key.PublicKey), c, proof)
}

// VerifyAdminSignature recovers the signer of proof and checks it
// against expectedAdmin, independent of holding the signing key —
// this is the shape the L1 rollup contract's verification would take
// (recover-and-compare), reproduced here for this repo's own tests.
func VerifyAdminSignature(expectedAdmin common.Address, c Commitment, proof []byte) (bool, error) {
	pub, err := crypto.SigToPub(c.Hash().Bytes(), proof)
	if err != nil {
		return false, fmt.Errorf("submit: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub) == expectedAdmin, nil
}

// IncomingCommitment is the tuple an incoming-call registration's proof
// attests to (§4.4 step 3, §3 "Registered incoming responses"): that
// the declared predicted response/finalL2Root, and the nested outgoing
// calls that produced them, are exactly what simulating the L1→L2 call
// against real L1 state yields. Structurally distinct from Commitment
// (an L2-source tx's outgoing calls vs. an incoming call's predicted
// response) but attested to the same way.
type IncomingCommitment struct {
	L2Target        common.Address
	PrevL2Root      common.Hash
	CallData        []byte
	Value           *big.Int
	OutgoingCalls   []common.Hash
	OutgoingResults [][]byte
	Response        []byte
	FinalL2Root     common.Hash
}

// Hash returns the Keccak256 digest the signature is computed over.
func (c IncomingCommitment) Hash() common.Hash {
	buf := make([]byte, 0, common.AddressLength+32+len(c.CallData)+len(c.Response)+32)
	buf = append(buf, c.L2Target.Bytes()...)
	buf = append(buf, c.PrevL2Root.Bytes()...)
	buf = append(buf, c.CallData...)
	if c.Value != nil {
		buf = append(buf, c.Value.Bytes()...)
	}
	for i, key := range c.OutgoingCalls {
		buf = append(buf, key.Bytes()...)
		buf = append(buf, c.OutgoingResults[i]...)
	}
	buf = append(buf, c.Response...)
	buf = append(buf, c.FinalL2Root.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// IncomingProofSigner is IncomingCommitment's counterpart to
// ProofSigner, kept as a separate interface since the two commitment
// shapes are attested to independently (an outgoing-call-path
// Commitment never needs a predicted response, an IncomingCommitment
// never needs an RLP-encoded tx).
type IncomingProofSigner interface {
	SignIncoming(c IncomingCommitment) ([]byte, error)
}

// IncomingProofVerifier is IncomingCommitment's counterpart to
// ProofVerifier.
type IncomingProofVerifier interface {
	VerifyIncoming(c IncomingCommitment, proof []byte) (bool, error)
}

// Signer is everything submit.Pipeline needs from an admin proof
// oracle: both commitment shapes, outgoing and incoming. AdminSigner
// satisfies it directly; a future zk/TEE oracle would too.
type Signer interface {
	ProofSigner
	IncomingProofSigner
}

func (a *AdminSigner) SignIncoming(c IncomingCommitment) ([]byte, error) {
	sig, err := crypto.Sign(c.Hash().Bytes(), a.key)
	if err != nil {
		return nil, fmt.Errorf("submit: sign incoming commitment: %w", err)
	}
	return sig, nil
}

func (a *AdminSigner) VerifyIncoming(c IncomingCommitment, proof []byte) (bool, error) {
	return VerifyIncomingAdminSignature(crypto.PubkeyToAddress(a.key.PublicKey), c, proof)
}

// VerifyIncomingAdminSignature is VerifyAdminSignature's counterpart
// for IncomingCommitment.
func VerifyIncomingAdminSignature(expectedAdmin common.Address, c IncomingCommitment, proof []byte) (bool, error) {
	pub, err := crypto.SigToPub(c.Hash().Bytes(), proof)
	if err != nil {
		return false, fmt.Errorf("submit: recover incoming signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub) == expectedAdmin, nil
}
