package rpcapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SubmitHints carries the caller's optional hints about a submit's
// cross-chain shape (§6 "hints?: {l2Addresses?, l2TargetAddress?,
// isContractCall?}"). The Builder only looks for incoming calls to the
// L2 addresses named here; an L1-source submit without them is
// broadcast with no incoming-call discovery.
type SubmitHints struct {
	L2Addresses     []common.Address `json:"l2Addresses,omitempty"`
	L2TargetAddress *common.Address  `json:"l2TargetAddress,omitempty"`
	IsContractCall  *bool            `json:"isContractCall,omitempty"`
}

// SubmitRequest is the literal §6 submit request body.
type SubmitRequest struct {
	SignedTx    hexutil.Bytes `json:"signedTx"`
	SourceChain string        `json:"sourceChain"`
	Hints       *SubmitHints  `json:"hints,omitempty"`
}

// SubmitResponse is the literal §6 submit success response.
type SubmitResponse struct {
	L1TxHash common.Hash `json:"l1TxHash"`
}

// StatusResponse is the literal §6 status response: readiness and how
// far the Builder's private derivation engine trails the L1 tip.
type StatusResponse struct {
	Ready      bool   `json:"ready"`
	SyncOffset uint64 `json:"syncOffset"`
}

// Handler is implemented by cmd/builder's admission wiring
// (internal/admission.Handler): BuilderAPI is a thin RPC-shaped
// pass-through, exactly as FullnodeAPI is a pass-through over
// l2chain.ReadClient.
type Handler interface {
	Submit(ctx context.Context, req SubmitRequest) (common.Hash, error)
	Status(ctx context.Context) (ready bool, syncOffset uint64, err error)
}

// BuilderAPI serves the Builder's two custom RPC methods named in §6:
// submit, which synchronously admits a signed tx and returns the L1
// tx hash it produced (or a structured error), and status, a global
// readiness/sync-offset check rather than a per-submission lookup.
type BuilderAPI struct {
	h Handler
}

func NewBuilderAPI(h Handler) *BuilderAPI {
	return &BuilderAPI{h: h}
}

func (a *BuilderAPI) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	hash, err := a.h.Submit(ctx, req)
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{L1TxHash: hash}, nil
}

func (a *BuilderAPI) Status(ctx context.Context) (StatusResponse, error) {
	ready, offset, err := a.h.Status(ctx)
	if err != nil {
		return StatusResponse{}, err
	}
	return StatusResponse{Ready: ready, SyncOffset: offset}, nil
}
