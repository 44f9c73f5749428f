package pageguard

import "testing"

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition("user.role EQUALS admin")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.FieldPath != "user.role" || c.Operator != OpEquals || c.Expected != "admin" || c.Negate {
		t.Fatalf("unexpected condition: %+v", c)
	}
}

func TestParseConditionNegated(t *testing.T) {
	c, err := ParseCondition("NOT user.groups CONTAINS suspended")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !c.Negate || c.Operator != OpContains || c.Expected != "suspended" {
		t.Fatalf("unexpected condition: %+v", c)
	}
}

func TestParseConditionQuotedValue(t *testing.T) {
	c, err := ParseCondition(`user.email EQUALS "Jo Smith@example.com"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Expected != "Jo Smith@example.com" {
		t.Fatalf("quotes should be stripped, got %v", c.Expected)
	}
}

func TestParseConditionBetween(t *testing.T) {
	c, err := ParseCondition("user.subscriptionEndDate BETWEEN 2026-01-01 2026-12-31")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	bounds, ok := c.Expected.([]any)
	if !ok || len(bounds) != 2 || bounds[0] != "2026-01-01" || bounds[1] != "2026-12-31" {
		t.Fatalf("unexpected bounds: %v", c.Expected)
	}

	if _, err := ParseCondition("user.subscriptionEndDate BETWEEN 2026-01-01"); err == nil {
		t.Fatalf("BETWEEN with one operand must fail")
	}
}

func TestParseConditionWithinLast(t *testing.T) {
	c, err := ParseCondition("user.lastLogin WITHIN_LAST 30_days")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Operator != OpWithinLast || c.Expected != "30_days" {
		t.Fatalf("unexpected condition: %+v", c)
	}
}

func TestParseConditionRejectsUnknowns(t *testing.T) {
	if _, err := ParseCondition("user.role RESEMBLES admin"); err == nil {
		t.Fatalf("unknown operator must fail")
	}
	if _, err := ParseCondition("user.shoeSize EQUALS 42"); err == nil {
		t.Fatalf("unknown field path must fail")
	}
	if _, err := ParseCondition("garbage"); err == nil {
		t.Fatalf("unparseable input must fail")
	}
}
