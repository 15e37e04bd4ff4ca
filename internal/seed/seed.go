// Package seed loads reference data (units, stations, shifts, policies and
// checkpoints) from a YAML document into a store.
package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/policy"
)

type Document struct {
	OrgID       string       `yaml:"org_id"`
	Units       []Unit       `yaml:"units"`
	Stations    []Station    `yaml:"stations"`
	Shifts      []Shift      `yaml:"shifts"`
	Policies    []string     `yaml:"policies"`
	Checkpoints []Checkpoint `yaml:"checkpoints"`
}

type Unit struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Station struct {
	ID     string `yaml:"id"`
	SiteID string `yaml:"site_id"`
	UnitID string `yaml:"unit_id"`
	Name   string `yaml:"name"`
}

type Shift struct {
	ID        string   `yaml:"id"`
	SiteID    string   `yaml:"site_id"`
	Date      string   `yaml:"date"`
	ShiftCode string   `yaml:"shift_code"`
	Stations  []string `yaml:"stations"`
}

type Checkpoint struct {
	ID     string `yaml:"id"`
	SiteID string `yaml:"site_id"`
	Name   string `yaml:"name"`
	// Inactive defaults to false so listed checkpoints are required.
	Inactive bool `yaml:"inactive"`
}

type Summary struct {
	Units       int
	Stations    int
	Shifts      int
	Policies    int
	Checkpoints int
}

func LoadFile(path string) (Document, error) {
	// #nosec G304 -- path is operator-provided seed file.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &doc); err != nil {
		return Document{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if strings.TrimSpace(doc.OrgID) == "" {
		return Document{}, fmt.Errorf("seed %s: org_id is required", path)
	}
	return doc, nil
}

// Apply writes the document. Policy paths are resolved relative to baseDir.
func Apply(ctx context.Context, store ledger.SeedStore, doc Document, baseDir string, now time.Time) (Summary, error) {
	var sum Summary
	at := ledger.FormatTime(now)
	org := doc.OrgID

	for _, u := range doc.Units {
		if err := store.PutUnit(ctx, ledger.UnitRecord{OrgID: org, UnitID: u.ID, Name: u.Name, CreatedAt: at}); err != nil {
			return sum, fmt.Errorf("unit %s: %w", u.ID, err)
		}
		sum.Units++
	}
	for _, st := range doc.Stations {
		rec := ledger.StationRecord{OrgID: org, StationID: st.ID, SiteID: st.SiteID, Name: st.Name, CreatedAt: at}
		if st.UnitID != "" {
			unit := st.UnitID
			rec.UnitID = &unit
		}
		if err := store.PutStation(ctx, rec); err != nil {
			return sum, fmt.Errorf("station %s: %w", st.ID, err)
		}
		sum.Stations++
	}
	for _, sh := range doc.Shifts {
		rec := ledger.ShiftRecord{
			OrgID:     org,
			ShiftID:   sh.ID,
			SiteID:    sh.SiteID,
			Date:      sh.Date,
			ShiftCode: strings.ToUpper(strings.TrimSpace(sh.ShiftCode)),
			CreatedAt: at,
		}
		if err := store.PutShift(ctx, rec); err != nil {
			return sum, fmt.Errorf("shift %s: %w", sh.ID, err)
		}
		for _, stationID := range sh.Stations {
			if err := store.PutShiftStation(ctx, ledger.ShiftStationRecord{OrgID: org, ShiftID: sh.ID, StationID: stationID}); err != nil {
				return sum, fmt.Errorf("shift %s station %s: %w", sh.ID, stationID, err)
			}
		}
		sum.Shifts++
	}
	for _, p := range doc.Policies {
		path := p
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		loaded, err := policy.LoadPolicyFile(path)
		if err != nil {
			return sum, fmt.Errorf("policy %s: %w", p, err)
		}
		if err := store.PutPolicy(ctx, loaded.Record(org, at)); err != nil {
			return sum, fmt.Errorf("policy %s: %w", loaded.Policy.PolicyID, err)
		}
		sum.Policies++
	}
	for _, cp := range doc.Checkpoints {
		rec := ledger.CheckpointRecord{OrgID: org, CheckpointID: cp.ID, Name: cp.Name, Active: !cp.Inactive, CreatedAt: at}
		if cp.SiteID != "" {
			site := cp.SiteID
			rec.SiteID = &site
		}
		if err := store.PutCheckpoint(ctx, rec); err != nil {
			return sum, fmt.Errorf("checkpoint %s: %w", cp.ID, err)
		}
		sum.Checkpoints++
	}
	return sum, nil
}
