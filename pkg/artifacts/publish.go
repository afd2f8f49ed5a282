package artifacts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/trustengine/pkg/sim"
)

// Publish stores the canonical JSON of report and returns its hash.
func Publish(ctx context.Context, st Store, report *sim.Report) (string, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("publish: marshal report: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("publish: canonicalize report: %w", err)
	}
	hash, err := st.Put(ctx, canonical)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	return hash, nil
}

// Fetch loads a published report.
func Fetch(ctx context.Context, st Store, hash string) (*sim.Report, error) {
	data, err := st.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	var report sim.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", hash, err)
	}
	return &report, nil
}
