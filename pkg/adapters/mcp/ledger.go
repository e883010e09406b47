package mcp

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger is the financial data served by the fixture tool provider.
type Ledger struct {
	Owner        string        `yaml:"owner" json:"owner"`
	Currency     string        `yaml:"currency" json:"currency"`
	Accounts     []Account     `yaml:"accounts" json:"accounts"`
	Transactions []Transaction `yaml:"transactions" json:"transactions"`
}

// Account is a bank account of the ledger owner.
type Account struct {
	ID      string  `yaml:"id" json:"id"`
	Name    string  `yaml:"name" json:"name"`
	IBAN    string  `yaml:"iban" json:"iban,omitempty"`
	Balance float64 `yaml:"balance" json:"balance"`
}

// Transaction is a single booking. Negative amounts are spending.
type Transaction struct {
	ID       string  `yaml:"id" json:"id"`
	Account  string  `yaml:"account" json:"account"`
	Date     string  `yaml:"date" json:"date"`
	Amount   float64 `yaml:"amount" json:"amount"`
	Merchant string  `yaml:"merchant" json:"merchant"`
	Category string  `yaml:"category" json:"category"`
}

// LoadLedger reads a YAML ledger file.
func LoadLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return ParseLedger(data)
}

// ParseLedger decodes and validates a YAML ledger.
func ParseLedger(data []byte) (*Ledger, error) {
	var l Ledger
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse ledger: %w", err)
	}
	if l.Currency == "" {
		l.Currency = "CHF"
	}
	known := make(map[string]bool, len(l.Accounts))
	for _, a := range l.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("ledger: account without id")
		}
		known[a.ID] = true
	}
	for _, t := range l.Transactions {
		if !known[t.Account] {
			return nil, fmt.Errorf("ledger: transaction %s references unknown account %q", t.ID, t.Account)
		}
		if _, err := time.Parse(time.DateOnly, t.Date); err != nil {
			return nil, fmt.Errorf("ledger: transaction %s: %w", t.ID, err)
		}
	}
	return &l, nil
}

// Account returns the account with the given id.
func (l *Ledger) Account(id string) (Account, bool) {
	for _, a := range l.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// TransactionFilter narrows Transactions. Zero fields match everything.
type TransactionFilter struct {
	Account  string
	Category string
	Since    string
	Limit    int
}

// Filter returns matching transactions, newest first.
func (l *Ledger) Filter(f TransactionFilter) []Transaction {
	var out []Transaction
	for _, t := range l.Transactions {
		if f.Account != "" && t.Account != f.Account {
			continue
		}
		if f.Category != "" && !strings.EqualFold(t.Category, f.Category) {
			continue
		}
		if f.Since != "" && t.Date < f.Since {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
