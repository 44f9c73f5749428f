package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pageguard"
)

// SQLPolicyStore persists policies in SQL (squealx). The flat columns carry
// the policy header and window; the rule trees and restriction lists are
// stored as JSON columns since the engine always loads a policy whole.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) SavePolicy(ctx context.Context, p *pageguard.Policy) error {
	if err := validateStrategy(p); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	days, _ := json.Marshal(p.DaysOfWeek)
	ips, _ := json.Marshal(p.IPRestrictions)
	geos, _ := json.Marshal(p.GeoRestrictions)
	devices, _ := json.Marshal(p.DeviceRestrictions)
	rules, _ := json.Marshal(p.Rules)
	groups, _ := json.Marshal(p.RuleGroups)
	q := `INSERT INTO policies(id, resource_id, name, enabled, strategy, valid_from, valid_to, daily_start, daily_end, days_json, ip_json, geo_json, device_json, rules_json, groups_json, main_operator, created_at, updated_at)
VALUES(:id, :resource_id, :name, :enabled, :strategy, :valid_from, :valid_to, :daily_start, :daily_end, :days_json, :ip_json, :geo_json, :device_json, :rules_json, :groups_json, :main_operator, :created_at, :updated_at)
ON CONFLICT(id) DO UPDATE SET resource_id=:resource_id, name=:name, enabled=:enabled, strategy=:strategy, valid_from=:valid_from, valid_to=:valid_to, daily_start=:daily_start, daily_end=:daily_end, days_json=:days_json, ip_json=:ip_json, geo_json=:geo_json, device_json=:device_json, rules_json=:rules_json, groups_json=:groups_json, main_operator=:main_operator, updated_at=:updated_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            p.ID,
		"resource_id":   p.ResourceID,
		"name":          p.Name,
		"enabled":       boolToInt(p.Enabled),
		"strategy":      string(p.Strategy),
		"valid_from":    sqlNullTimeOrNil(p.ValidFrom),
		"valid_to":      sqlNullTimeOrNil(p.ValidTo),
		"daily_start":   p.DailyStart,
		"daily_end":     p.DailyEnd,
		"days_json":     string(days),
		"ip_json":       string(ips),
		"geo_json":      string(geos),
		"device_json":   string(devices),
		"rules_json":    string(rules),
		"groups_json":   string(groups),
		"main_operator": string(p.MainOperator),
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
	})
	return err
}

func (s *SQLPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	q := `DELETE FROM policies WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

const policyColumns = `id, resource_id, name, enabled, strategy, valid_from, valid_to, daily_start, daily_end, days_json, ip_json, geo_json, device_json, rules_json, groups_json, main_operator, created_at, updated_at`

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*pageguard.Policy, error) {
	q := `SELECT ` + policyColumns + ` FROM policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("%w: %s", pageguard.ErrNoPolicy, id)
	}
	return scanPolicy(r)
}

func (s *SQLPolicyStore) GetPoliciesForResource(ctx context.Context, resourceID string) ([]*pageguard.Policy, error) {
	q := `SELECT ` + policyColumns + ` FROM policies WHERE resource_id = :resource_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"resource_id": resourceID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*pageguard.Policy, 0)
	for r.Next() {
		p, err := scanPolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLPolicyStore) ListPolicies(ctx context.Context) ([]*pageguard.Policy, error) {
	q := `SELECT ` + policyColumns + ` FROM policies ORDER BY resource_id, id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*pageguard.Policy, 0)
	for r.Next() {
		p, err := scanPolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(r rowScanner) (*pageguard.Policy, error) {
	var id, resourceID, name, strategy, dailyStart, dailyEnd, mainOp string
	var daysJSON, ipJSON, geoJSON, deviceJSON, rulesJSON, groupsJSON string
	var enabledInt int
	var validFromRaw, validToRaw, createdRaw, updatedRaw interface{}
	if err := r.Scan(&id, &resourceID, &name, &enabledInt, &strategy,
		&validFromRaw, &validToRaw, &dailyStart, &dailyEnd,
		&daysJSON, &ipJSON, &geoJSON, &deviceJSON, &rulesJSON, &groupsJSON,
		&mainOp, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	p := &pageguard.Policy{
		ID:           id,
		ResourceID:   resourceID,
		Name:         name,
		Enabled:      enabledInt != 0,
		Strategy:     pageguard.Strategy(strategy),
		DailyStart:   dailyStart,
		DailyEnd:     dailyEnd,
		MainOperator: pageguard.LogicOperator(mainOp),
	}
	p.ValidFrom = scanTime(validFromRaw)
	p.ValidTo = scanTime(validToRaw)
	if t := scanTime(createdRaw); t != nil {
		p.CreatedAt = *t
	}
	if t := scanTime(updatedRaw); t != nil {
		p.UpdatedAt = *t
	}
	_ = json.Unmarshal([]byte(daysJSON), &p.DaysOfWeek)
	_ = json.Unmarshal([]byte(ipJSON), &p.IPRestrictions)
	_ = json.Unmarshal([]byte(geoJSON), &p.GeoRestrictions)
	_ = json.Unmarshal([]byte(deviceJSON), &p.DeviceRestrictions)
	_ = json.Unmarshal([]byte(rulesJSON), &p.Rules)
	_ = json.Unmarshal([]byte(groupsJSON), &p.RuleGroups)
	return p, nil
}
