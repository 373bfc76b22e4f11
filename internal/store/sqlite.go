package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cdrn/memepool/internal/model"
	"github.com/cdrn/memepool/internal/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id TEXT PRIMARY KEY,
	block_number INTEGER NOT NULL,
	predicted_txs TEXT NOT NULL,
	predicted_gas_price REAL NOT NULL,
	details TEXT NOT NULL,
	metadata TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_block ON predictions(block_number);

CREATE TABLE IF NOT EXISTS comparisons (
	id TEXT PRIMARY KEY,
	block_number INTEGER NOT NULL UNIQUE,
	predicted_txs TEXT NOT NULL,
	actual_txs TEXT NOT NULL,
	accuracy REAL NOT NULL,
	miner TEXT NOT NULL,
	builder TEXT,
	builder_name TEXT,
	average_gas_price TEXT,
	timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contracts (
	address TEXT PRIMARY KEY,
	protocol TEXT,
	type_tag TEXT,
	schema_json TEXT,
	contract_name TEXT,
	verified INTEGER NOT NULL DEFAULT 0,
	fetch_attempted INTEGER NOT NULL DEFAULT 0,
	call_count INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS signatures (
	selector TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
`

// SQLiteStore is the sqlite-backed Store, using modernc.org/sqlite (a
// pure-Go, cgo-free driver) so the daemon and the read-only API surface
// remain a single static binary (§4.11).
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or migrates the database at path and returns a ready Store.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer serialization
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SavePrediction inserts a new prediction row. Predictions are append-only:
// the Forecaster's latest-wins rule is enforced in memory, not in storage.
func (s *SQLiteStore) SavePrediction(ctx context.Context, p model.BlockPrediction) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	txs, err := json.Marshal(hashesToStrings(p.PredictedTransactions))
	if err != nil {
		return err
	}
	details, err := json.Marshal(p.TransactionDetails)
	if err != nil {
		return err
	}
	var metaJSON []byte
	if p.Metadata != nil {
		metaJSON, err = json.Marshal(p.Metadata)
		if err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions (id, block_number, predicted_txs, predicted_gas_price, details, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BlockNumber, string(txs), p.PredictedGasPrice, string(details), nullableString(metaJSON), p.CreatedAt)
	return err
}

// UpdatePredictionMetadata patches the metadata column of the most recent
// prediction for blockNumber. The Forecaster does not call it: it stores
// metadata together with the prediction in SavePrediction.
func (s *SQLiteStore) UpdatePredictionMetadata(ctx context.Context, blockNumber uint64, meta model.PredictionMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE predictions SET metadata = ?
		WHERE id = (SELECT id FROM predictions WHERE block_number = ? ORDER BY created_at DESC LIMIT 1)`,
		string(metaJSON), blockNumber)
	return err
}

// SaveComparison upserts the single comparison row for a block number
// (the Reconciler writes at most one per block, §4.10 step 6).
func (s *SQLiteStore) SaveComparison(ctx context.Context, c model.BlockComparison) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	predicted, err := json.Marshal(hashesToStrings(c.PredictedTransactions))
	if err != nil {
		return err
	}
	actual, err := json.Marshal(hashesToStrings(c.ActualTransactions))
	if err != nil {
		return err
	}
	var avgGasPrice string
	if c.AverageGasPrice != nil {
		avgGasPrice = c.AverageGasPrice.String()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comparisons (id, block_number, predicted_txs, actual_txs, accuracy, miner, builder, builder_name, average_gas_price, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(block_number) DO UPDATE SET
			predicted_txs = excluded.predicted_txs,
			actual_txs = excluded.actual_txs,
			accuracy = excluded.accuracy,
			miner = excluded.miner,
			builder = excluded.builder,
			builder_name = excluded.builder_name,
			average_gas_price = excluded.average_gas_price,
			timestamp = excluded.timestamp`,
		c.ID, c.BlockNumber, string(predicted), string(actual), c.Accuracy,
		addrHex(c.Miner), c.Builder, c.BuilderName, nullableString([]byte(avgGasPrice)), c.Timestamp)
	return err
}

func (s *SQLiteStore) ListRecentPredictions(ctx context.Context, limit int) ([]model.BlockPrediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_number, predicted_txs, predicted_gas_price, details, metadata, created_at
		FROM predictions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlockPrediction
	for rows.Next() {
		var (
			p          model.BlockPrediction
			txsJSON    string
			detailJSON string
			metaJSON   sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.BlockNumber, &txsJSON, &p.PredictedGasPrice, &detailJSON, &metaJSON, &p.CreatedAt); err != nil {
			return nil, err
		}
		hashes, err := stringsToHashes(txsJSON)
		if err != nil {
			return nil, err
		}
		p.PredictedTransactions = hashes
		if err := json.Unmarshal([]byte(detailJSON), &p.TransactionDetails); err != nil {
			return nil, err
		}
		if metaJSON.Valid && metaJSON.String != "" {
			var meta model.PredictionMetadata
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
				return nil, err
			}
			p.Metadata = &meta
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountPredictions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) ListRecentComparisons(ctx context.Context, limit int) ([]model.BlockComparison, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_number, predicted_txs, actual_txs, accuracy, miner, builder, builder_name, average_gas_price, timestamp
		FROM comparisons ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlockComparison
	for rows.Next() {
		var (
			c             model.BlockComparison
			predictedJSON string
			actualJSON    string
			minerHex      string
			builder       sql.NullString
			builderName   sql.NullString
			avgGasPrice   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.BlockNumber, &predictedJSON, &actualJSON, &c.Accuracy, &minerHex, &builder, &builderName, &avgGasPrice, &c.Timestamp); err != nil {
			return nil, err
		}
		predicted, err := stringsToHashes(predictedJSON)
		if err != nil {
			return nil, err
		}
		actual, err := stringsToHashes(actualJSON)
		if err != nil {
			return nil, err
		}
		c.PredictedTransactions = predicted
		c.ActualTransactions = actual
		c.Miner = common.HexToAddress(minerHex)
		c.Builder = builder.String
		c.BuilderName = builderName.String
		if avgGasPrice.Valid && avgGasPrice.String != "" {
			v, ok := new(big.Int).SetString(avgGasPrice.String, 10)
			if ok {
				c.AverageGasPrice = v
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LookupContract(ctx context.Context, addr common.Address) (*model.ContractCacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, protocol, type_tag, schema_json, contract_name, verified, fetch_attempted, call_count, updated_at
		FROM contracts WHERE address = ?`, strings.ToLower(addr.Hex()))

	var (
		e           model.ContractCacheEntry
		addrStr     string
		verifiedInt int
		fetchInt    int
	)
	err := row.Scan(&addrStr, &e.Protocol, &e.TypeTag, &e.Schema, &e.ContractName, &verifiedInt, &fetchInt, &e.CallCount, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Address = addr
	e.Verified = verifiedInt != 0
	e.FetchAttempted = fetchInt != 0
	return &e, nil
}

func (s *SQLiteStore) UpsertContract(ctx context.Context, entry model.ContractCacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (address, protocol, type_tag, schema_json, contract_name, verified, fetch_attempted, call_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			protocol = excluded.protocol,
			type_tag = excluded.type_tag,
			schema_json = excluded.schema_json,
			contract_name = excluded.contract_name,
			verified = excluded.verified,
			fetch_attempted = excluded.fetch_attempted,
			call_count = excluded.call_count,
			updated_at = excluded.updated_at`,
		strings.ToLower(entry.Address.Hex()), entry.Protocol, entry.TypeTag, entry.Schema, entry.ContractName,
		boolToInt(entry.Verified), boolToInt(entry.FetchAttempted), entry.CallCount, entry.UpdatedAt)
	return err
}

func (s *SQLiteStore) IncrementContractCallCount(ctx context.Context, addr common.Address) error {
	_, err := s.db.ExecContext(ctx, `UPDATE contracts SET call_count = call_count + 1 WHERE address = ?`, strings.ToLower(addr.Hex()))
	return err
}

func (s *SQLiteStore) LookupSignature(ctx context.Context, selector registry.Selector) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM signatures WHERE selector = ?`, selectorHex(selector)).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

func (s *SQLiteStore) SaveSignature(ctx context.Context, selector registry.Selector, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signatures (selector, name) VALUES (?, ?)
		ON CONFLICT(selector) DO UPDATE SET name = excluded.name`, selectorHex(selector), name)
	return err
}

func selectorHex(s registry.Selector) string {
	return fmt.Sprintf("0x%x", s[:])
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func hashesToStrings(hashes []common.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.Hex()
	}
	return out
}

func stringsToHashes(jsonArr string) ([]common.Hash, error) {
	var strs []string
	if err := json.Unmarshal([]byte(jsonArr), &strs); err != nil {
		return nil, err
	}
	out := make([]common.Hash, len(strs))
	for i, s := range strs {
		out[i] = common.HexToHash(s)
	}
	return out, nil
}
