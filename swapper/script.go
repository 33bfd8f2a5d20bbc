package swapper

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ClaimScriptData is the reconstructed Taproot script tree for a swap
// output we can claim with the preimage: a claim leaf (spendable with the
// preimage plus our signature) and a refund leaf (spendable by the
// counterparty's signature after the timeout), reconstructed from the
// stored create-response JSON.
type ClaimScriptData struct {
	ClaimScript  []byte
	RefundScript []byte
	ClaimLeaf    txscript.TapLeaf
	RefundLeaf   txscript.TapLeaf
	MerkleRoot   [32]byte
	InternalKey  *btcec.PublicKey
	OutputKey    *btcec.PublicKey
}

// BuildClaimScript builds the claim leaf: the preimage holder, signing with
// claimPubKey, can spend once the preimage's SHA256 matches preimageHash.
//
//	OP_SHA256 <preimageHash> OP_EQUALVERIFY <claimPubKey> OP_CHECKSIG
func BuildClaimScript(preimageHash []byte, claimPubKey *btcec.PublicKey) ([]byte, error) {
	if len(preimageHash) != 32 {
		return nil, fmt.Errorf("preimage hash must be 32 bytes, got %d", len(preimageHash))
	}
	if claimPubKey == nil {
		return nil, fmt.Errorf("claim pubkey cannot be nil")
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(preimageHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(schnorr.SerializePubKey(claimPubKey))
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// BuildRefundScript builds the refund leaf: refundPubKey can spend after
// timeoutBlockHeight (absolute, CLTV-style), matching every swap leg's
// refund path.
//
//	<timeoutBlockHeight> OP_CHECKLOCKTIMEVERIFY OP_DROP <refundPubKey> OP_CHECKSIG
func BuildRefundScript(refundPubKey *btcec.PublicKey, timeoutBlockHeight uint32) ([]byte, error) {
	if refundPubKey == nil {
		return nil, fmt.Errorf("refund pubkey cannot be nil")
	}

	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(timeoutBlockHeight))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(schnorr.SerializePubKey(refundPubKey))
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// BuildClaimScriptTree assembles the two-leaf Taproot tree (claim, refund)
// and tweaks internalKey by its Merkle root, giving the output key the swap
// address must pay to.
func BuildClaimScriptTree(internalKey, claimPubKey, refundPubKey *btcec.PublicKey, preimageHash []byte, timeoutBlockHeight uint32) (*ClaimScriptData, error) {
	claimScript, err := BuildClaimScript(preimageHash, claimPubKey)
	if err != nil {
		return nil, fmt.Errorf("building claim script: %w", err)
	}
	refundScript, err := BuildRefundScript(refundPubKey, timeoutBlockHeight)
	if err != nil {
		return nil, fmt.Errorf("building refund script: %w", err)
	}

	claimLeaf := txscript.NewTapLeaf(ElementsLeafVersion, claimScript)
	refundLeaf := txscript.NewTapLeaf(ElementsLeafVersion, refundScript)
	tree := txscript.AssembleTaprootScriptTree(claimLeaf, refundLeaf)
	merkleRoot := tree.RootNode.TapHash()

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, merkleRoot[:])

	return &ClaimScriptData{
		ClaimScript:  claimScript,
		RefundScript: refundScript,
		ClaimLeaf:    claimLeaf,
		RefundLeaf:   refundLeaf,
		MerkleRoot:   merkleRoot,
		InternalKey:  internalKey,
		OutputKey:    outputKey,
	}, nil
}

// ClaimControlBlock returns the serialized control block proving the claim
// leaf is part of the committed tree, for use in the key-path-less
// (non-cooperative) claim witness.
func (d *ClaimScriptData) ClaimControlBlock() ([]byte, error) {
	tree := txscript.AssembleTaprootScriptTree(d.ClaimLeaf, d.RefundLeaf)
	idx := leafIndex(tree, d.ClaimLeaf)
	ctrlBlock := tree.LeafMerkleProofs[idx].ToControlBlock(d.InternalKey)
	return ctrlBlock.ToBytes()
}

// RefundControlBlock returns the serialized control block for the refund
// leaf.
func (d *ClaimScriptData) RefundControlBlock() ([]byte, error) {
	tree := txscript.AssembleTaprootScriptTree(d.ClaimLeaf, d.RefundLeaf)
	idx := leafIndex(tree, d.RefundLeaf)
	ctrlBlock := tree.LeafMerkleProofs[idx].ToControlBlock(d.InternalKey)
	return ctrlBlock.ToBytes()
}

func leafIndex(tree *txscript.IndexedTapScriptTree, leaf txscript.TapLeaf) int {
	leafHash := leaf.TapHash()
	for i, proof := range tree.LeafMerkleProofs {
		if proof.TapLeaf.TapHash() == leafHash {
			return i
		}
	}
	return 0
}

// BuildClaimWitness builds the script-path witness for a non-cooperative
// claim: <signature> <preimage> <claimScript> <controlBlock>.
func BuildClaimWitness(sig *schnorr.Signature, preimage, claimScript, controlBlock []byte) wire.TxWitness {
	return wire.TxWitness{
		sig.Serialize(),
		preimage,
		claimScript,
		controlBlock,
	}
}

// BuildRefundWitness builds the script-path witness for a refund:
// <signature> <refundScript> <controlBlock>.
func BuildRefundWitness(sig *schnorr.Signature, refundScript, controlBlock []byte) wire.TxWitness {
	return wire.TxWitness{
		sig.Serialize(),
		refundScript,
		controlBlock,
	}
}

// HashPreimage returns the SHA256 hash a swap's preimage must match.
func HashPreimage(preimage []byte) [32]byte {
	return sha256.Sum256(preimage)
}

// VerifyPreimage reports whether preimage hashes to expectedHash.
func VerifyPreimage(preimage, expectedHash []byte) bool {
	if len(preimage) != 32 || len(expectedHash) != 32 {
		return false
	}
	got := sha256.Sum256(preimage)
	return subtleConstantTimeCompare(got[:], expectedHash)
}

func subtleConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
