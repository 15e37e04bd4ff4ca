package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

// ContentHash digests the canonical JSON of the four config blobs.
func ContentHash(p Policy) (string, error) {
	digest, _, err := crypto.DigestCanonical(map[string]any{
		"weights":     blob(p.Weights),
		"thresholds":  blob(p.Thresholds),
		"penalties":   blob(p.Penalties),
		"feasibility": blob(p.Feasibility),
	})
	if err != nil {
		return "", fmt.Errorf("policy %s content hash: %w", p.PolicyID, err)
	}
	return digest, nil
}

// SnapshotBinding records which policy version governed each unit of the
// shift. Existing (shift, unit, version) snapshots are left untouched. It
// returns the number of snapshots written.
func SnapshotBinding(ctx context.Context, store ledger.BindingStore, binding *Binding, now time.Time) (int, error) {
	if binding == nil {
		return 0, nil
	}
	ctx, span := tracer.Start(ctx, "policy.SnapshotBinding")
	defer span.End()

	created := 0
	for _, unit := range binding.UnitIDs {
		p, ok := binding.PoliciesByUnit[unit]
		if !ok {
			continue
		}
		hash, err := ContentHash(p)
		if err != nil {
			return created, err
		}
		inserted, err := store.PutPolicySnapshot(ctx, ledger.PolicySnapshotRecord{
			SnapshotID:    uuid.NewString(),
			OrgID:         binding.OrgID,
			ShiftID:       binding.ShiftID,
			UnitID:        unit,
			PolicyID:      p.PolicyID,
			PolicyVersion: p.Version,
			ContentHash:   hash,
			CreatedAt:     ledger.FormatTime(now),
		})
		if err != nil {
			span.RecordError(err)
			return created, fmt.Errorf("snapshot unit %s: %w", unit, err)
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// marshalBlob converts a decoded YAML mapping into a JSON document.
func marshalBlob(v map[string]any) (json.RawMessage, error) {
	if len(v) == 0 {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
