package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
)

// sqlQueries holds the dialect-specific statements of a SQL backend.
type sqlQueries struct {
	schema          []string
	getReputation   string
	getStake        string
	putReputation   string
	putStake        string
	insertChange    string
	listTierChanges string
}

// sqlStore is the database/sql implementation shared by the SQLite and
// Postgres backends.
type sqlStore struct {
	db *sql.DB
	q  sqlQueries
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range s.q.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Reputation(ctx context.Context, account string) (reputation.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.q.getReputation, account).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return reputation.Record{}, nil
	}
	if err != nil {
		return reputation.Record{}, unavailable("get reputation", err)
	}
	return decodeReputation(data)
}

func (s *sqlStore) Stake(ctx context.Context, account string) (staking.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.q.getStake, account).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return staking.Record{}, nil
	}
	if err != nil {
		return staking.Record{}, unavailable("get stake", err)
	}
	return decodeStake(data)
}

func (s *sqlStore) Commit(ctx context.Context, m Mutation) (err error) {
	var repData, stakeData, changeData []byte
	if m.Reputation != nil {
		if repData, err = m.Reputation.MarshalBinary(); err != nil {
			return err
		}
	}
	if m.Stake != nil {
		if stakeData, err = m.Stake.MarshalBinary(); err != nil {
			return err
		}
	}
	if m.TierChange != nil {
		if changeData, err = json.Marshal(m.TierChange); err != nil {
			return fmt.Errorf("failed to marshal tier change: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if repData != nil {
		if _, err = tx.ExecContext(ctx, s.q.putReputation, m.Account, repData); err != nil {
			return unavailable("put reputation", err)
		}
	}
	if stakeData != nil {
		if _, err = tx.ExecContext(ctx, s.q.putStake, m.Account, stakeData); err != nil {
			return unavailable("put stake", err)
		}
	}
	if changeData != nil {
		if _, err = tx.ExecContext(ctx, s.q.insertChange, m.Account, string(changeData)); err != nil {
			return unavailable("insert tier change", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *sqlStore) TierChanges(ctx context.Context, account string) ([]staking.TierChange, error) {
	rows, err := s.db.QueryContext(ctx, s.q.listTierChanges, account)
	if err != nil {
		return nil, unavailable("list tier changes", err)
	}
	defer func() { _ = rows.Close() }()

	changes := make([]staking.TierChange, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, unavailable("scan tier change", err)
		}
		var c staking.TierChange
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("%w: tier change: %v", staking.ErrCorruptRecord, err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list tier changes", err)
	}
	return changes, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
