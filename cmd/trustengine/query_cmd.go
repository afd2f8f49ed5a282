package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/Mindburn-Labs/trustengine/pkg/engine"
	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
	"github.com/Mindburn-Labs/trustengine/pkg/store"
	"github.com/Mindburn-Labs/trustengine/pkg/tiers"
)

type queryResult struct {
	Account        string               `json:"account"`
	Reputation     reputation.Record    `json:"reputation"`
	SuccessRateBPS uint16               `json:"success_rate_bps"`
	Status         reputation.Status    `json:"status"`
	Stake          staking.Record       `json:"stake"`
	Benefits       []tiers.Benefit      `json:"benefits"`
	TierChanges    []staking.TierChange `json:"tier_changes"`
}

func runQueryCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("query", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		account    string
		now        int64
		paramsFile string
	)
	cmd.StringVar(&account, "account", "", "Account identifier (REQUIRED)")
	cmd.Int64Var(&now, "now", 0, "Unix time used for status (default: current time)")
	cmd.StringVar(&paramsFile, "params", "", "YAML parameter file (default $PARAMS_FILE)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if account == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --account is required")
		return 2
	}
	if now == 0 {
		now = time.Now().Unix()
	}

	cfg := setup(stderr)
	if paramsFile == "" {
		paramsFile = cfg.ParamsFile
	}
	ctx := context.Background()

	params, err := config.LoadParams(paramsFile)
	if err != nil {
		return fail(stderr, err)
	}
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = st.Close() }()

	eng, err := engine.New(st, params)
	if err != nil {
		return fail(stderr, err)
	}
	res, err := query(ctx, eng, params, account, now)
	if err != nil {
		return fail(stderr, err)
	}
	if err := writeJSON(stdout, res); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func query(ctx context.Context, eng *engine.Engine, params *config.Params, account string, now int64) (*queryResult, error) {
	rep, err := eng.GetReputation(ctx, account)
	if err != nil {
		return nil, err
	}
	stake, err := eng.GetStake(ctx, account)
	if err != nil {
		return nil, err
	}
	status, err := eng.DeriveStatus(ctx, account, now)
	if err != nil {
		return nil, err
	}
	changes, err := eng.TierChanges(ctx, account)
	if err != nil {
		return nil, err
	}
	schedule, err := params.Schedule()
	if err != nil {
		return nil, err
	}

	res := &queryResult{
		Account:        account,
		Reputation:     rep,
		SuccessRateBPS: rep.SuccessRateBPS(),
		Status:         status,
		Stake:          stake,
		Benefits:       []tiers.Benefit{},
		TierChanges:    changes,
	}
	if def := schedule.Get(stake.Tier); def != nil {
		res.Benefits = append(res.Benefits, def.Benefits...)
	}
	if res.TierChanges == nil {
		res.TierChanges = []staking.TierChange{}
	}
	return res, nil
}
