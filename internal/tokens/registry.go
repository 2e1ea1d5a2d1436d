package tokens

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	ChainTypeEthereum = "ethereum"

	NetworkTypeMainnet = "mainnet"
	NetworkTypeTestnet = "testnet"
)

// ValidNetworkType reports whether t names a known network environment
func ValidNetworkType(t string) bool {
	return t == NetworkTypeMainnet || t == NetworkTypeTestnet
}

// Network describes one blockchain network and how to reach it
type Network struct {
	Name             string `yaml:"name"`
	ChainType        string `yaml:"chain_type"`
	NetworkType      string `yaml:"network_type"`
	ChainId          int64  `yaml:"chain_id"`
	RpcUrl           string `yaml:"rpc_url"`
	PrimeNetworkId   string `yaml:"prime_network_id"`
	PrimeNetworkType string `yaml:"prime_network_type"`
}

// Token describes a token deployment on one network. An empty TokenAddress
// means the network's native asset.
type Token struct {
	Symbol         string `yaml:"symbol"`
	Network        string `yaml:"network"`
	NetworkType    string `yaml:"network_type"`
	ChainType      string `yaml:"chain_type"`
	Decimals       int32  `yaml:"decimals"`
	TokenAddress   string `yaml:"token_address"`
	GatewayAddress string `yaml:"gateway_address"`
	ChainId        int64  `yaml:"-"`
}

func (t Token) Native() bool {
	return t.TokenAddress == ""
}

type registryFile struct {
	Networks []Network `yaml:"networks"`
	Tokens   []Token   `yaml:"tokens"`
}

type tokenKey struct {
	symbol, networkType, chainType, network string
}

type networkKey struct {
	networkType, name string
}

// Registry is an immutable token/network lookup table, built once at start-up
type Registry struct {
	networks map[networkKey]Network
	tokens   map[tokenKey]Token
	order    []Network
}

// Load reads the registry from a YAML file. Relative paths resolve against the working directory.
func Load(file string) (*Registry, error) {
	path := file
	if !filepath.IsAbs(file) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, file)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}

	registry, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", file, err)
	}
	return registry, nil
}

func Parse(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return New(f.Networks, f.Tokens)
}

// New validates and indexes networks and tokens. Every token must reference a declared network.
func New(networks []Network, tokens []Token) (*Registry, error) {
	r := &Registry{
		networks: make(map[networkKey]Network, len(networks)),
		tokens:   make(map[tokenKey]Token, len(tokens)),
	}

	for i, n := range networks {
		if n.Name == "" || n.ChainType == "" {
			return nil, fmt.Errorf("network at index %d missing name or chain_type", i)
		}
		if !ValidNetworkType(n.NetworkType) {
			return nil, fmt.Errorf("network %s has invalid network_type %q", n.Name, n.NetworkType)
		}
		key := networkKey{n.NetworkType, n.Name}
		if _, exists := r.networks[key]; exists {
			return nil, fmt.Errorf("duplicate network %s (%s)", n.Name, n.NetworkType)
		}
		r.networks[key] = n
		r.order = append(r.order, n)
	}

	for i, t := range tokens {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token at index %d missing symbol", i)
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			return nil, fmt.Errorf("token %s on %s has invalid decimals %d", t.Symbol, t.Network, t.Decimals)
		}
		n, ok := r.networks[networkKey{t.NetworkType, t.Network}]
		if !ok {
			return nil, fmt.Errorf("token %s references unknown network %s (%s)", t.Symbol, t.Network, t.NetworkType)
		}
		if t.ChainType == "" {
			t.ChainType = n.ChainType
		}
		if t.ChainType != n.ChainType {
			return nil, fmt.Errorf("token %s chain_type %s does not match network %s", t.Symbol, t.ChainType, n.Name)
		}
		t.Symbol = strings.ToUpper(t.Symbol)
		t.ChainId = n.ChainId

		key := tokenKey{t.Symbol, t.NetworkType, t.ChainType, t.Network}
		if _, exists := r.tokens[key]; exists {
			return nil, fmt.Errorf("duplicate token %s on %s (%s)", t.Symbol, t.Network, t.NetworkType)
		}
		r.tokens[key] = t
	}

	return r, nil
}

// Lookup returns the token deployment for the exact combination. Symbols are matched upper-cased.
func (r *Registry) Lookup(symbol, networkType, chainType, network string) (Token, bool) {
	t, ok := r.tokens[tokenKey{strings.ToUpper(strings.TrimSpace(symbol)), networkType, chainType, network}]
	return t, ok
}

func (r *Registry) Network(networkType, name string) (Network, bool) {
	n, ok := r.networks[networkKey{networkType, name}]
	return n, ok
}

// Networks lists the declared networks for a chain type and environment, in file order
func (r *Registry) Networks(networkType, chainType string) []Network {
	var result []Network
	for _, n := range r.order {
		if n.NetworkType == networkType && n.ChainType == chainType {
			result = append(result, n)
		}
	}
	return result
}

// NetworkNames is Networks reduced to names
func (r *Registry) NetworkNames(networkType, chainType string) []string {
	var names []string
	for _, n := range r.Networks(networkType, chainType) {
		names = append(names, n.Name)
	}
	return names
}

// Symbols lists the distinct token symbols declared for an environment
func (r *Registry) Symbols(networkType string) []string {
	seen := make(map[string]bool)
	var symbols []string
	for key := range r.tokens {
		if key.networkType == networkType && !seen[key.symbol] {
			seen[key.symbol] = true
			symbols = append(symbols, key.symbol)
		}
	}
	return symbols
}
