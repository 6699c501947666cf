package postgresql

// migrations returns the ordered schema migrations for the stageflow tables.
// Stage graphs are stored as JSONB documents: they are always read and
// written as one unit, and the version stamp on the row is the only
// concurrency control they need.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				name TEXT NOT NULL,
				is_default BOOLEAN NOT NULL DEFAULT FALSE,
				is_published BOOLEAN NOT NULL DEFAULT FALSE,
				published_at TIMESTAMP WITH TIME ZONE,
				version INTEGER NOT NULL DEFAULT 1,
				stages JSONB NOT NULL DEFAULT '[]',
				transitions JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_is_default ON workflows(is_default);
			CREATE INDEX IF NOT EXISTS idx_workflows_is_published ON workflows(is_published);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS tasks (
				id UUID PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				workflow_id UUID,
				stage_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				blocked_reason TEXT NOT NULL DEFAULT '',
				has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_tasks_workflow_id ON tasks(workflow_id);
			CREATE INDEX IF NOT EXISTS idx_tasks_stage_id ON tasks(stage_id);
		`,
	}
}
