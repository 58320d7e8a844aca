// Package main provides a CLI tool for exporting proof keys and inspecting
// eligibility receipts issued by zkgate.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"zkgate/internal/proof/groth16"
	"zkgate/internal/receipt"
)

// Dev signing key - matches config.go when RECEIPT_SIGNING_KEY is not set
const devReceiptKey = "dev-receipt-key-change-in-production"

type receiptOutput struct {
	Valid        bool    `json:"valid"`
	Error        string  `json:"error,omitempty"`
	CredentialID string  `json:"credential_id,omitempty"`
	Jurisdiction string  `json:"jurisdiction,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	MaxAmount    float64 `json:"max_amount,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	IssuedAt     string  `json:"issued_at,omitempty"`
	ExpiresAt    string  `json:"expires_at,omitempty"`
}

func main() {
	keysCmd := flag.NewFlagSet("keys", flag.ExitOnError)
	receiptCmd := flag.NewFlagSet("receipt", flag.ExitOnError)

	keysPK := keysCmd.String("pk", "age.pk", "Output path for the proving key")
	keysVK := keysCmd.String("vk", "age.vk", "Output path for the verifying key")

	receiptKey := receiptCmd.String("key", devReceiptKey, "Receipt signing key")
	receiptJSON := receiptCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "keys":
		keysCmd.Parse(os.Args[2:])
		exportKeys(*keysPK, *keysVK)
	case "receipt":
		receiptCmd.Parse(os.Args[2:])
		if receiptCmd.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "Error: receipt token argument is required")
			os.Exit(1)
		}
		inspectReceipt(receiptCmd.Arg(0), *receiptKey, *receiptJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`keygen - Proof key and receipt tooling for zkgate

Usage:
  keygen <command> [flags]

Commands:
  keys      Run Groth16 setup for the age circuit and export the key pair
  receipt   Validate an eligibility receipt and print its claims

Examples:
  # Export keys, then point the server at them
  keygen keys -pk /etc/zkgate/age.pk -vk /etc/zkgate/age.vk
  PROOF_PROVING_KEY=/etc/zkgate/age.pk PROOF_VERIFYING_KEY=/etc/zkgate/age.vk zkgate

  # Inspect a receipt signed with the dev key
  keygen receipt eyJhbGciOiJIUzI1NiIs...

  # Inspect a receipt signed with a custom key, as JSON
  keygen receipt -key "$RECEIPT_SIGNING_KEY" -json eyJhbGciOiJIUzI1NiIs...

Use "keygen <command> -h" for more information about a command.`)
}

func exportKeys(pkPath, vkPath string) {
	start := time.Now()
	backend, err := groth16.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running setup: %v\n", err)
		os.Exit(1)
	}

	pkFile, err := os.Create(pkPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", pkPath, err)
		os.Exit(1)
	}
	defer pkFile.Close()
	vkFile, err := os.Create(vkPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", vkPath, err)
		os.Exit(1)
	}
	defer vkFile.Close()

	pkw, vkw := bufio.NewWriter(pkFile), bufio.NewWriter(vkFile)
	if err := backend.WriteKeys(pkw, vkw); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing keys: %v\n", err)
		os.Exit(1)
	}
	if err := pkw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", pkPath, err)
		os.Exit(1)
	}
	if err := vkw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", vkPath, err)
		os.Exit(1)
	}

	fmt.Println("Groth16 Keys")
	fmt.Println("============")
	fmt.Printf("Scheme:        %s\n", groth16.Scheme)
	fmt.Printf("Proving key:   %s\n", pkPath)
	fmt.Printf("Verifying key: %s\n", vkPath)
	fmt.Printf("Setup took:    %s\n", time.Since(start).Round(time.Millisecond))
}

func inspectReceipt(token, key string, jsonOutput bool) {
	signer, err := receipt.NewSigner(key, time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	claims, err := signer.Validate(token)
	if err != nil {
		if jsonOutput {
			printJSON(receiptOutput{Valid: false, Error: err.Error()})
		} else {
			fmt.Printf("Receipt is not valid: %v\n", err)
		}
		os.Exit(1)
	}

	output := receiptOutput{
		Valid:        true,
		CredentialID: claims.Subject,
		Jurisdiction: claims.Jurisdiction,
		Amount:       claims.Amount,
		MaxAmount:    claims.MaxAmount,
		Reason:       claims.Reason,
	}
	if claims.IssuedAt != nil {
		output.IssuedAt = claims.IssuedAt.UTC().Format(time.RFC3339)
	}
	if claims.ExpiresAt != nil {
		output.ExpiresAt = claims.ExpiresAt.UTC().Format(time.RFC3339)
	}

	if jsonOutput {
		printJSON(output)
		return
	}
	fmt.Println("Eligibility Receipt")
	fmt.Println("===================")
	fmt.Printf("Credential:   %s\n", output.CredentialID)
	fmt.Printf("Jurisdiction: %s\n", output.Jurisdiction)
	fmt.Printf("Amount:       %.2f (max %.2f)\n", output.Amount, output.MaxAmount)
	fmt.Printf("Reason:       %s\n", output.Reason)
	fmt.Printf("Issued At:    %s\n", output.IssuedAt)
	fmt.Printf("Expires At:   %s\n", output.ExpiresAt)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
