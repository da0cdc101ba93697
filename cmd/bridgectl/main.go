package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"evmbridge/config"
	"evmbridge/crypto"
	"evmbridge/rpc"
)

const (
	defaultConfig   = "./config.toml"
	defaultEndpoint = "http://127.0.0.1:8645"
	tokenEnv        = "BRIDGE_TOKEN"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "token":
		err = runToken(os.Args[2:])
	case "keygen":
		err = runKeygen()
	case "call":
		err = runCall(os.Args[2:])
	case "batch":
		err = runBatch(os.Args[2:])
	case "audit":
		err = runAudit(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the bridged config file")
	subject := fs.String("subject", "", "Account the token acts for (bech32 or hex)")
	root := fs.Bool("root", false, "Grant the root scope")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	secret, err := cfg.ReadSecret()
	if err != nil {
		return err
	}
	if !*root && strings.TrimSpace(*subject) == "" {
		return fmt.Errorf("either --subject or --root is required")
	}
	var scopes []string
	if *root {
		scopes = append(scopes, rpc.RootScope)
	}
	token, err := rpc.IssueToken(rpc.TokenRequest{
		Secret:   secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Subject:  *subject,
		Scopes:   scopes,
		TTL:      *ttl,
	})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runKeygen() error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	out := map[string]string{
		"privateKey": fmt.Sprintf("0x%x", key.Bytes()),
		"address":    key.EVMAddress().Hex(),
		"account":    key.AccountID().String(),
	}
	return printJSON(out)
}

func clientFlags(fs *flag.FlagSet) (*string, *string) {
	endpoint := fs.String("rpc", defaultEndpoint, "bridged JSON-RPC endpoint")
	token := fs.String("token", os.Getenv(tokenEnv), "Bearer token (defaults to $"+tokenEnv+")")
	return endpoint, token
}

func runCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	endpoint, token := clientFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: bridgectl call [flags] <method> [params-json]")
	}
	method := fs.Arg(0)
	var params interface{}
	if fs.NArg() > 1 {
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(fs.Arg(1)), &decoded); err != nil {
			return fmt.Errorf("params must be a JSON object: %w", err)
		}
		params = decoded
	}
	var result json.RawMessage
	if err := newClient(*endpoint, *token).call(context.Background(), method, params, &result); err != nil {
		return err
	}
	return printJSON(result)
}

func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	endpoint, token := clientFlags(fs)
	file := fs.String("file", "", "YAML manifest of calls to run")
	fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("--file is required")
	}
	m, err := loadManifest(*file)
	if err != nil {
		return err
	}
	return runManifest(context.Background(), newClient(*endpoint, *token), m, os.Stdout)
}

func runAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	endpoint, token := clientFlags(fs)
	format := fs.String("format", "jsonl", "Export format: jsonl or csv")
	eventType := fs.String("type", "", "Only export this event type")
	limit := fs.Int("limit", 100, "Maximum records to export")
	out := fs.String("out", "-", "Output file, - for stdout")
	fs.Parse(args)

	digest, err := exportAudit(context.Background(), newClient(*endpoint, *token), *format, *eventType, *limit, *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "sha256 %s\n", digest)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Println("bridgectl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  token    Mint a bearer token from the bridged HMAC secret")
	fmt.Println("  keygen   Generate a key and print its EVM address and account")
	fmt.Println("  call     Invoke a single JSON-RPC method")
	fmt.Println("  batch    Run a YAML manifest of JSON-RPC calls")
	fmt.Println("  audit    Export the audit log as JSONL or CSV")
}
