package submit

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestAdminSigner_SignVerifyCommitment(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewAdminSigner(key)

	c := Commitment{
		L2BlockNumber:   7,
		PrevL2Root:      common.HexToHash("0x01"),
		RLPEncodedTx:    []byte("rlp-tx"),
		OutgoingCalls:   []common.Hash{common.HexToHash("0xaa")},
		OutgoingResults: [][]byte{[]byte("result")},
	}
	proof, err := signer.Sign(c)
	require.NoError(t, err)

	ok, err := signer.Verify(c, proof)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyAdminSignature(crypto.PubkeyToAddress(key.PublicKey), c, proof)
	require.NoError(t, err)
	require.True(t, ok)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	ok, err = VerifyAdminSignature(crypto.PubkeyToAddress(other.PublicKey), c, proof)
	require.NoError(t, err)
	require.False(t, ok, "proof must not verify against a different admin key")

	tampered := c
	tampered.RLPEncodedTx = []byte("different-tx")
	ok, err = signer.Verify(tampered, proof)
	require.NoError(t, err)
	require.False(t, ok, "changing the attested tx must invalidate the signature")
}

func TestAdminSigner_SignVerifyIncomingCommitment(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewAdminSigner(key)

	c := IncomingCommitment{
		L2Target:        common.HexToAddress("0x00000000000000000000000000000000001234"),
		PrevL2Root:      common.HexToHash("0x02"),
		CallData:        []byte("hello"),
		Value:           big.NewInt(500),
		OutgoingCalls:   []common.Hash{common.HexToHash("0xbb")},
		OutgoingResults: [][]byte{[]byte("nested-result")},
		Response:        []byte("predicted-response"),
		FinalL2Root:     common.HexToHash("0x03"),
	}
	proof, err := signer.SignIncoming(c)
	require.NoError(t, err)

	ok, err := signer.VerifyIncoming(c, proof)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyIncomingAdminSignature(crypto.PubkeyToAddress(key.PublicKey), c, proof)
	require.NoError(t, err)
	require.True(t, ok)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	ok, err = VerifyIncomingAdminSignature(crypto.PubkeyToAddress(other.PublicKey), c, proof)
	require.NoError(t, err)
	require.False(t, ok, "proof must not verify against a different admin key")

	tampered := c
	tampered.FinalL2Root = common.HexToHash("0xdeadbeef")
	ok, err = signer.VerifyIncoming(tampered, proof)
	require.NoError(t, err)
	require.False(t, ok, "changing the attested final root must invalidate the signature")
}

// TestAdminSigner_SatisfiesSigner confirms AdminSigner implements the
// combined interface submit.Pipeline depends on.
func TestAdminSigner_SatisfiesSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	var _ Signer = NewAdminSigner(key)
}
