package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

// SimulatedEscrow is the development escrow gateway. It settles transfers
// instantly with synthetic transaction hashes and keeps a per-wallet running
// balance so repeated payouts against the same escrow can be inspected.
// Production deployments swap in a chain-backed gateway behind the same
// interface.
type SimulatedEscrow struct {
	chain string

	mu       sync.Mutex
	paidOut  map[string]int64 // sourceWalletRef -> total cents transferred out
	refunded map[string]int64
	log      *logrus.Entry
}

// NewSimulatedEscrow builds a gateway that reports transfers on the given
// chain label (e.g. "base", "solana").
func NewSimulatedEscrow(chain string) *SimulatedEscrow {
	if chain == "" {
		chain = "base"
	}
	return &SimulatedEscrow{
		chain:    chain,
		paidOut:  make(map[string]int64),
		refunded: make(map[string]int64),
		log:      logrus.WithField("component", "simulated_escrow"),
	}
}

// Transfer implements marketplace.EscrowGateway.
func (e *SimulatedEscrow) Transfer(ctx context.Context, destinationAddress string, amountCents int64, sourceWalletRef string) (marketplace.TransferResult, error) {
	if strings.TrimSpace(destinationAddress) == "" {
		return marketplace.TransferResult{Success: false, Error: "destination address required"}, nil
	}
	if amountCents <= 0 {
		return marketplace.TransferResult{Success: false, Error: "amount must be positive"}, nil
	}

	hash, err := syntheticTxHash()
	if err != nil {
		return marketplace.TransferResult{}, err
	}

	e.mu.Lock()
	e.paidOut[sourceWalletRef] += amountCents
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"chain":       e.chain,
		"destination": destinationAddress,
		"amount":      amountCents,
		"source":      sourceWalletRef,
		"tx_hash":     hash,
	}).Info("simulated transfer settled")

	return marketplace.TransferResult{Success: true, TransactionHash: hash}, nil
}

// Refund implements marketplace.EscrowGateway.
func (e *SimulatedEscrow) Refund(ctx context.Context, creatorAddress string, sourceWalletRef string, amountCents int64) (marketplace.TransferResult, error) {
	if strings.TrimSpace(creatorAddress) == "" {
		return marketplace.TransferResult{Success: false, Error: "creator address required"}, nil
	}
	if amountCents <= 0 {
		return marketplace.TransferResult{Success: false, Error: "amount must be positive"}, nil
	}

	hash, err := syntheticTxHash()
	if err != nil {
		return marketplace.TransferResult{}, err
	}

	e.mu.Lock()
	e.refunded[sourceWalletRef] += amountCents
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"chain":   e.chain,
		"creator": creatorAddress,
		"amount":  amountCents,
		"source":  sourceWalletRef,
		"tx_hash": hash,
	}).Info("simulated refund settled")

	return marketplace.TransferResult{Success: true, TransactionHash: hash}, nil
}

// PaidOut reports the total cents transferred out of a wallet so far.
func (e *SimulatedEscrow) PaidOut(sourceWalletRef string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paidOut[sourceWalletRef]
}

func syntheticTxHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate tx hash: %w", err)
	}
	return "0x" + hex.EncodeToString(b), nil
}
