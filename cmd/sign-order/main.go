// Command sign-order demonstrates building and signing a top-of-block order
// against the settlement core's EIP-712 domain: generate a key, hash a
// sample order, sign it, and verify the signature recovers the same signer.
package main

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/angstrom-labs/angstrom-core/config"
	"github.com/angstrom-labs/angstrom-core/sig"
)

func main() {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	signer := crypto.PubkeyToAddress(privKey.PublicKey)
	fmt.Printf("Signer: %s\n", signer.Hex())

	domain := config.DefaultDomain()
	msg := sig.TopOfBlockMessage{
		UseInternal:   false,
		ZeroForOne:    true,
		QuantityIn:    big.NewInt(1_000_000),
		QuantityOut:   big.NewInt(500_000),
		MaxGasAsset0:  big.NewInt(10_000),
		GasUsedAsset0: big.NewInt(0),
		PairIndex:     0,
		Recipient:     signer,
	}

	digest, err := sig.HashTopOfBlock(sig.Domain{
		Name:              domain.Name,
		Version:           domain.Version,
		ChainID:           domain.ChainID,
		VerifyingContract: domain.VerifyingContract,
	}, msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash order: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Digest: 0x%x\n", digest)

	signature, err := crypto.Sign(digest[:], privKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature: 0x%x\n", signature)

	pubBytes, err := crypto.Ecrecover(digest[:], signature)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ecrecover: %v\n", err)
		os.Exit(1)
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal pubkey: %v\n", err)
		os.Exit(1)
	}
	recovered := crypto.PubkeyToAddress(*pub)

	if recovered != signer {
		fmt.Fprintf(os.Stderr, "recovered signer %s does not match %s\n", recovered.Hex(), signer.Hex())
		os.Exit(1)
	}
	fmt.Println("Signature verified.")
}
