// Package compiler serves the compile endpoint.
//
// Nothing is compiled. Every non-empty source gets the same prebuilt Counter
// contract (bytecode + ABI) so the deploy flow of the front end has something
// that deploys on any testnet. Treat it as a placeholder.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/solaudit/internal/domain/audit"
)

// Bytecode of the canned Counter contract.
const Bytecode = "0x608060405234801561001057600080fd5b50610150806100206000396000f3fe608060405234801561001057600080fd5b50600436106100365760003560e01c80636d4ce63c1461003b5780c3d5d10b14610059575b600080fd5b610043610075565b60405161005091906100a9565b60405180910390f35b610073600480360381019061006e91906100f5565b61007e565b005b60005481565b8060008190555050565b6000819050919050565b6100878161007a565b82525050565b60006020820190506100a2600083018461007e565b92915050565b60006020820190506100bd600083018461007e565b92915050565b600080fd5b6100d18161007a565b81146100dc57600080fd5b50565b6000813590506100ee816100c8565b92915050565b60006020828403121561010a57610109610100565b5b6000610118848285016100df565b9150509291505056fea26469706673582212209b5c9e5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f6c6f63616c"

// ABI of the canned Counter contract.
const ABI = `[
  {"type": "constructor", "inputs": [], "stateMutability": "nonpayable"},
  {"type": "function", "name": "count", "inputs": [], "outputs": [{"type": "uint256"}], "stateMutability": "view"},
  {"type": "function", "name": "increment", "inputs": [{"type": "uint256"}], "outputs": [], "stateMutability": "nonpayable"}
]`

type Service struct {
	artifact domain.CompiledArtifact
	logger   zerolog.Logger
}

// NewService checks the canned artifact once so a broken constant fails at startup.
func NewService(logger zerolog.Logger) (*Service, error) {
	code, err := hexutil.Decode(Bytecode)
	if err != nil {
		return nil, fmt.Errorf("canned bytecode: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, fmt.Errorf("canned abi: %w", err)
	}
	var entries []any
	if err := json.Unmarshal([]byte(ABI), &entries); err != nil {
		return nil, fmt.Errorf("canned abi: %w", err)
	}

	logger = logger.With().Str("component", "compiler").Logger()
	logger.Debug().
		Int("code_size", len(code)).
		Str("code_hash", crypto.Keccak256Hash(code).Hex()).
		Int("methods", len(parsed.Methods)).
		Msg("canned artifact loaded")

	return &Service{
		artifact: domain.CompiledArtifact{Success: true, Bytecode: Bytecode, ABI: entries},
		logger:   logger,
	}, nil
}

// Compile returns the canned artifact for any non-blank source.
func (s *Service) Compile(ctx context.Context, code string) (domain.CompiledArtifact, error) {
	if strings.TrimSpace(code) == "" {
		return domain.CompiledArtifact{}, domain.ErrNoCode
	}
	s.logger.Info().Str("contract", domain.ContractName(code)).Msg("serving canned bytecode")
	return s.artifact, nil
}
