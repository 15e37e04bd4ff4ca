package policy

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

// Document is the on-disk YAML form of a unit policy.
type Document struct {
	PolicyID      string         `yaml:"policy_id"`
	UnitID        string         `yaml:"unit_id"`
	Version       string         `yaml:"version"`
	Status        string         `yaml:"status"`
	EffectiveFrom string         `yaml:"effective_from"`
	Weights       map[string]any `yaml:"weights"`
	Thresholds    map[string]any `yaml:"thresholds"`
	Penalties     map[string]any `yaml:"penalties"`
	Feasibility   map[string]any `yaml:"feasibility"`
}

type LoadedPolicy struct {
	Document Document
	Policy   Policy
	Hash     string
	Bytes    []byte
}

// LoadPolicyFile loads a YAML policy and computes its hash from raw bytes.
func LoadPolicyFile(path string) (LoadedPolicy, error) {
	// #nosec G304 -- path comes from operator-supplied seed files.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedPolicy{}, err
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) (LoadedPolicy, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return LoadedPolicy{}, err
	}
	if strings.TrimSpace(doc.PolicyID) == "" {
		return LoadedPolicy{}, fmt.Errorf("policy_id is required")
	}
	if strings.TrimSpace(doc.UnitID) == "" {
		return LoadedPolicy{}, fmt.Errorf("policy %s: unit_id is required", doc.PolicyID)
	}
	if strings.TrimSpace(doc.Version) == "" {
		return LoadedPolicy{}, fmt.Errorf("policy %s: version is required", doc.PolicyID)
	}
	effective, err := parseEffectiveFrom(doc.EffectiveFrom)
	if err != nil {
		return LoadedPolicy{}, fmt.Errorf("policy %s: %w", doc.PolicyID, err)
	}
	doc.EffectiveFrom = effective
	if doc.Status == "" {
		doc.Status = ledger.PolicyActive
	}
	if doc.Status != ledger.PolicyActive && doc.Status != ledger.PolicyInactive {
		return LoadedPolicy{}, fmt.Errorf("policy %s: unsupported status %q", doc.PolicyID, doc.Status)
	}

	p := Policy{
		PolicyID:      doc.PolicyID,
		UnitID:        doc.UnitID,
		Version:       doc.Version,
		EffectiveFrom: doc.EffectiveFrom,
	}
	if p.Weights, err = marshalBlob(doc.Weights); err != nil {
		return LoadedPolicy{}, fmt.Errorf("policy %s weights: %w", doc.PolicyID, err)
	}
	if p.Thresholds, err = marshalBlob(doc.Thresholds); err != nil {
		return LoadedPolicy{}, fmt.Errorf("policy %s thresholds: %w", doc.PolicyID, err)
	}
	if p.Penalties, err = marshalBlob(doc.Penalties); err != nil {
		return LoadedPolicy{}, fmt.Errorf("policy %s penalties: %w", doc.PolicyID, err)
	}
	if p.Feasibility, err = marshalBlob(doc.Feasibility); err != nil {
		return LoadedPolicy{}, fmt.Errorf("policy %s feasibility: %w", doc.PolicyID, err)
	}

	return LoadedPolicy{
		Document: doc,
		Policy:   p,
		Hash:     crypto.DigestWithPrefix(data),
		Bytes:    data,
	}, nil
}

// effectiveDateLayout is the only accepted effective_from form. Active
// policies are ordered by comparing the stored text.
const effectiveDateLayout = "2006-01-02"

func parseEffectiveFrom(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("effective_from is required")
	}
	t, err := time.Parse(effectiveDateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("effective_from %q must be YYYY-MM-DD", raw)
	}
	return t.Format(effectiveDateLayout), nil
}

// Record converts the loaded policy to its storage form.
func (l LoadedPolicy) Record(orgID, createdAt string) ledger.PolicyRecord {
	return ledger.PolicyRecord{
		OrgID:         orgID,
		PolicyID:      l.Policy.PolicyID,
		UnitID:        l.Policy.UnitID,
		Version:       l.Policy.Version,
		Status:        l.Document.Status,
		EffectiveFrom: l.Policy.EffectiveFrom,
		Weights:       l.Policy.Weights,
		Thresholds:    l.Policy.Thresholds,
		Penalties:     l.Policy.Penalties,
		Feasibility:   l.Policy.Feasibility,
		CreatedAt:     createdAt,
	}
}
