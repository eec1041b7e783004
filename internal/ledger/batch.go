package ledger

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"budgetkit/internal/services"
)

// batchFile is the TOML layout accepted by LoadBatch:
//
//	[[transactions]]
//	external_id = "bank-8812"
//	account_id = "checking"
//	category_id = "0190a1b2-..."
//	amount = 42.10
//	description = "Corner shop"
//	date = 2025-03-04T00:00:00Z
type batchFile struct {
	Transactions []services.ImportRecord `toml:"transactions"`
}

// LoadBatch reads import records from a TOML file. The batch must be
// non-empty and no larger than MaxBatch.
func LoadBatch(path string) ([]services.ImportRecord, error) {
	var f batchFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	switch {
	case len(f.Transactions) == 0:
		return nil, fmt.Errorf("%s has no transactions", path)
	case len(f.Transactions) > MaxBatch:
		return nil, fmt.Errorf("%s has %d transactions, at most %d per batch", path, len(f.Transactions), MaxBatch)
	}
	for i, rec := range f.Transactions {
		if rec.ExternalID == "" {
			return nil, fmt.Errorf("transaction %d: external_id is required", i+1)
		}
	}
	return f.Transactions, nil
}
