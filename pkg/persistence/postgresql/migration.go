package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Approval records: one row per non-marker workflow step.
			CREATE TABLE approvals (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(100) NOT NULL,
				step_name VARCHAR(100) NOT NULL,
				requester_id VARCHAR(255) NOT NULL,
				approver_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'escalated', 'expired')),
				priority VARCHAR(10) NOT NULL DEFAULT 'normal',
				comment TEXT NOT NULL DEFAULT '',
				document_title TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				decided_at TIMESTAMP WITH TIME ZONE,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approvals_entity ON approvals(entity_id, entity_type);
			CREATE INDEX idx_approvals_approver_status ON approvals(approver_id, status);
			CREATE INDEX idx_approvals_status_created_at ON approvals(status, created_at);

			-- Caller-defined approval rules. Threshold is a scalar or a
			-- set, stored as JSON.
			CREATE TABLE approval_rules (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				field VARCHAR(255) NOT NULL,
				condition VARCHAR(50) NOT NULL,
				threshold JSONB,
				action VARCHAR(100) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				priority INT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approval_rules_priority ON approval_rules(priority);
		`,
	}
}
