package models

// Seeded rule sets for common approval scenarios. Callers load these into
// an engine instance when the built-in template rules are not enough.

// ContractApprovalRules returns the standard rule set for contract
// approvals, tiered by contract value.
func ContractApprovalRules() []ApprovalRule {
	return []ApprovalRule{
		{
			Name:      "Standard Contract",
			Condition: ConditionLessThan,
			Field:     "contract_value",
			Threshold: 100_000,
			Action:    ActionStandardApproval,
			Priority:  1,
		},
		{
			Name:      "Medium Value Contract",
			Condition: ConditionGreaterThan,
			Field:     "contract_value",
			Threshold: 100_000,
			Action:    ActionAddFinanceApproval,
			Priority:  2,
		},
		{
			Name:      "High Value Contract",
			Condition: ConditionGreaterThan,
			Field:     "contract_value",
			Threshold: 1_000_000,
			Action:    ActionAddLegalReview,
			Priority:  3,
		},
		{
			Name:      "Very High Value Contract",
			Condition: ConditionGreaterThan,
			Field:     "contract_value",
			Threshold: 5_000_000,
			Action:    ActionAddExecutiveApproval,
			Priority:  4,
		},
		{
			Name:      "NDA Auto-Escalate",
			Condition: ConditionEquals,
			Field:     "contract_type",
			Threshold: "NDA",
			Action:    ActionAddLegalReview,
			Priority:  5,
		},
	}
}

// VendorOnboardingRules returns the rule set for vendor onboarding.
func VendorOnboardingRules() []ApprovalRule {
	return []ApprovalRule{
		{
			Name:      "Vendor Risk Assessment",
			Condition: ConditionInList,
			Field:     "vendor_type",
			Threshold: []string{"High Risk", "New Vendor"},
			Action:    ActionAddExecutiveApproval,
			Priority:  1,
		},
		{
			Name:      "International Vendor",
			Condition: ConditionEquals,
			Field:     "vendor_country",
			Threshold: "International",
			Action:    ActionAddComplianceReview,
			Priority:  2,
		},
	}
}

// RuleSetByName resolves a seeded rule set by its configuration name.
func RuleSetByName(name string) ([]ApprovalRule, bool) {
	switch name {
	case "contract_approval":
		return ContractApprovalRules(), true
	case "vendor_onboarding":
		return VendorOnboardingRules(), true
	case "change_order":
		return ChangeOrderRules(), true
	}

	return nil, false
}

// ChangeOrderRules returns the rule set for contract change orders.
func ChangeOrderRules() []ApprovalRule {
	return []ApprovalRule{
		{
			Name:      "Minor Change",
			Condition: ConditionLessThan,
			Field:     "change_amount",
			Threshold: 50_000,
			Action:    ActionManagerApproval,
			Priority:  1,
		},
		{
			Name:      "Major Change",
			Condition: ConditionGreaterThan,
			Field:     "change_amount",
			Threshold: 500_000,
			Action:    ActionAddExecutiveApproval,
			Priority:  2,
		},
	}
}
