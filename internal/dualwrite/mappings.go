package dualwrite

// Secondary table names
const (
	TableUsers                   = "postgres_users"
	TableTasks                   = "postgres_tasks"
	TableTaskLabels              = "postgres_task_labels"
	TableTeams                   = "postgres_teams"
	TableLabels                  = "postgres_labels"
	TableRoles                   = "postgres_roles"
	TableTaskAssignments         = "postgres_task_assignments"
	TableWatchlists              = "postgres_watchlist"
	TableUserTeamDetails         = "postgres_user_team_details"
	TableUserRoles               = "postgres_user_roles"
	TableAuditLogs               = "postgres_audit_logs"
	TableTeamCreationInviteCodes = "postgres_team_creation_invite_codes"
)

func now() any { return nowUTC() }

func emptyObject() any { return map[string]any{} }

// DefaultMappings returns the mappings of every mirrored collection
func DefaultMappings() []EntityMapping {
	return []EntityMapping{
		usersMapping(),
		tasksMapping(),
		teamsMapping(),
		labelsMapping(),
		rolesMapping(),
		taskAssignmentsMapping(),
		watchlistsMapping(),
		userTeamDetailsMapping(),
		userRolesMapping(),
		auditLogsMapping(),
		teamCreationInviteCodesMapping(),
	}
}

// NewDefaultRegistry builds the sealed registry of DefaultMappings
func NewDefaultRegistry() (*Registry, error) {
	return NewRegistry(DefaultMappings()...)
}

func timestamps() []FieldSpec {
	return []FieldSpec{
		{Source: "created_at", Aliases: []string{"createdAt"}, Column: "created_at", Convert: AsTime, DefaultFunc: now},
		{Source: "updated_at", Aliases: []string{"updatedAt"}, Column: "updated_at", Convert: AsTime},
	}
}

func authorship() []FieldSpec {
	return []FieldSpec{
		{Source: "created_by", Aliases: []string{"createdBy"}, Column: "created_by", Convert: AsID},
		{Source: "updated_by", Aliases: []string{"updatedBy"}, Column: "updated_by", Convert: AsOptionalID},
	}
}

func fields(groups ...[]FieldSpec) []FieldSpec {
	var out []FieldSpec
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func usersMapping() EntityMapping {
	return EntityMapping{
		Name:  "users",
		Table: TableDescriptor{Name: TableUsers},
		Fields: fields([]FieldSpec{
			{Source: "google_id", Aliases: []string{"googleId"}, Column: "google_id", Convert: AsOptionalString},
			{Source: "email_id", Aliases: []string{"emailId", "email"}, Column: "email_id", Convert: AsString, Required: true},
			{Source: "name", Column: "name", Convert: AsString},
			{Source: "picture", Column: "picture", Convert: AsOptionalString},
		}, timestamps()),
	}
}

func tasksMapping() EntityMapping {
	return EntityMapping{
		Name:            "tasks",
		Table:           TableDescriptor{Name: TableTasks, SoftDeleteColumn: "is_deleted"},
		SoftDeleteField: "isDeleted",
		Fields: fields([]FieldSpec{
			{Source: "displayId", Aliases: []string{"display_id"}, Column: "display_id", Convert: AsOptionalString},
			{Source: "title", Column: "title", Convert: AsString, Required: true},
			{Source: "description", Column: "description", Convert: AsOptionalString},
			{Source: "priority", Column: "priority", Convert: AsTaskPriority},
			{Source: "status", Column: "status", Convert: AsTaskStatus},
			{Source: "isAcknowledged", Aliases: []string{"is_acknowledged"}, Column: "is_acknowledged", Convert: AsBool, Default: false},
			{Source: "isDeleted", Aliases: []string{"is_deleted"}, Column: "is_deleted", Convert: AsBool, Default: false},
			{Source: "startedAt", Aliases: []string{"started_at"}, Column: "started_at", Convert: AsTime},
			{Source: "dueAt", Aliases: []string{"due_at"}, Column: "due_at", Convert: AsTime},
			{Source: "createdAt", Aliases: []string{"created_at"}, Column: "created_at", Convert: AsTime, DefaultFunc: now},
			{Source: "updatedAt", Aliases: []string{"updated_at"}, Column: "updated_at", Convert: AsTime},
			{Source: "createdBy", Aliases: []string{"created_by"}, Column: "created_by", Convert: AsID},
			{Source: "updatedBy", Aliases: []string{"updated_by"}, Column: "updated_by", Convert: AsOptionalID},
		}),
		Children: []ChildSpec{
			{Source: "labels", Table: TableTaskLabels, ForeignKey: "task_mongo_id", ValueColumn: "label_mongo_id", Convert: AsID},
		},
	}
}

func teamsMapping() EntityMapping {
	return EntityMapping{
		Name:            "teams",
		Table:           TableDescriptor{Name: TableTeams, SoftDeleteColumn: "is_deleted"},
		SoftDeleteField: "is_deleted",
		Fields: fields([]FieldSpec{
			{Source: "name", Column: "name", Convert: AsString, Required: true},
			{Source: "description", Column: "description", Convert: AsOptionalString},
			{Source: "invite_code", Aliases: []string{"inviteCode"}, Column: "invite_code", Convert: AsOptionalString},
			{Source: "poc_id", Aliases: []string{"pocId"}, Column: "poc_id", Convert: AsOptionalID},
			{Source: "is_deleted", Aliases: []string{"isDeleted"}, Column: "is_deleted", Convert: AsBool, Default: false},
		}, authorship(), timestamps()),
	}
}

func labelsMapping() EntityMapping {
	return EntityMapping{
		Name:            "labels",
		Table:           TableDescriptor{Name: TableLabels, SoftDeleteColumn: "is_deleted"},
		SoftDeleteField: "isDeleted",
		Fields: fields([]FieldSpec{
			{Source: "name", Column: "name", Convert: AsString, Required: true},
			{Source: "color", Column: "color", Convert: AsString, Default: "#000000"},
			{Source: "description", Column: "description", Convert: AsOptionalString},
			{Source: "isDeleted", Aliases: []string{"is_deleted"}, Column: "is_deleted", Convert: AsBool, Default: false},
		}, timestamps()),
	}
}

func rolesMapping() EntityMapping {
	return EntityMapping{
		Name:  "roles",
		Table: TableDescriptor{Name: TableRoles},
		Fields: fields([]FieldSpec{
			{Source: "name", Column: "name", Convert: AsString, Required: true},
			{Source: "description", Column: "description", Convert: AsOptionalString},
			{Source: "permissions", Column: "permissions", Convert: AsJSON, Reverse: FromJSON, DefaultFunc: emptyObject},
		}, timestamps()),
	}
}

func taskAssignmentsMapping() EntityMapping {
	return EntityMapping{
		Name:               "task_assignments",
		Table:              TableDescriptor{Name: TableTaskAssignments, SoftDeleteColumn: "is_active"},
		SoftDeleteField:    "is_active",
		SoftDeleteInverted: true,
		Fields: fields([]FieldSpec{
			{Source: "task_id", Aliases: []string{"taskId", "task_mongo_id"}, Column: "task_mongo_id", Convert: AsID, Required: true},
			{Source: "assignee_id", Aliases: []string{"assigneeId"}, Column: "assignee_id", Convert: AsID, Required: true},
			{Source: "user_type", Aliases: []string{"userType"}, Column: "user_type", Convert: AsAssigneeType, Required: true},
			{Source: "team_id", Aliases: []string{"teamId"}, Column: "team_id", Convert: AsOptionalID},
			{Source: "is_active", Aliases: []string{"isActive"}, Column: "is_active", Convert: AsBool, Default: true},
		}, authorship(), timestamps()),
	}
}

func watchlistsMapping() EntityMapping {
	return EntityMapping{
		Name:               "watchlists",
		Table:              TableDescriptor{Name: TableWatchlists, SoftDeleteColumn: "is_active"},
		SoftDeleteField:    "isActive",
		SoftDeleteInverted: true,
		Fields: fields([]FieldSpec{
			{Source: "taskId", Aliases: []string{"task_id"}, Column: "task_id", Convert: AsID, Required: true},
			{Source: "userId", Aliases: []string{"user_id"}, Column: "user_id", Convert: AsID, Required: true},
			{Source: "isActive", Aliases: []string{"is_active"}, Column: "is_active", Convert: AsBool, Default: true},
			{Source: "createdBy", Aliases: []string{"created_by"}, Column: "created_by", Convert: AsID},
			{Source: "updatedBy", Aliases: []string{"updated_by"}, Column: "updated_by", Convert: AsOptionalID},
			{Source: "createdAt", Aliases: []string{"created_at"}, Column: "created_at", Convert: AsTime, DefaultFunc: now},
			{Source: "updatedAt", Aliases: []string{"updated_at"}, Column: "updated_at", Convert: AsTime},
		}),
	}
}

func userTeamDetailsMapping() EntityMapping {
	return EntityMapping{
		Name:               "user_team_details",
		Table:              TableDescriptor{Name: TableUserTeamDetails, SoftDeleteColumn: "is_active"},
		SoftDeleteField:    "is_active",
		SoftDeleteInverted: true,
		Fields: fields([]FieldSpec{
			{Source: "user_id", Aliases: []string{"userId"}, Column: "user_id", Convert: AsID, Required: true},
			{Source: "team_id", Aliases: []string{"teamId"}, Column: "team_id", Convert: AsID, Required: true},
			{Source: "is_active", Aliases: []string{"isActive"}, Column: "is_active", Convert: AsBool, Default: true},
		}, authorship(), timestamps()),
	}
}

func userRolesMapping() EntityMapping {
	return EntityMapping{
		Name:  "user_roles",
		Table: TableDescriptor{Name: TableUserRoles},
		Fields: fields([]FieldSpec{
			{Source: "user_id", Aliases: []string{"userId"}, Column: "user_mongo_id", Convert: AsID, Required: true},
			{Source: "role_id", Aliases: []string{"roleId"}, Column: "role_mongo_id", Convert: AsID, Required: true},
			{Source: "team_id", Aliases: []string{"teamId"}, Column: "team_mongo_id", Convert: AsOptionalID},
		}, authorship(), timestamps()),
	}
}

func auditLogsMapping() EntityMapping {
	return EntityMapping{
		Name:  "audit_logs",
		Table: TableDescriptor{Name: TableAuditLogs},
		Fields: []FieldSpec{
			{Source: "action", Column: "action", Convert: AsString, Required: true},
			{Source: "collection_name", Aliases: []string{"collectionName"}, Column: "collection_name", Convert: AsOptionalString},
			{Source: "document_id", Aliases: []string{"documentId"}, Column: "document_id", Convert: AsID},
			{Source: "user_id", Aliases: []string{"userId"}, Column: "user_mongo_id", Convert: AsOptionalID},
			{Source: "old_values", Aliases: []string{"oldValues"}, Column: "old_values", Convert: AsJSON, Reverse: FromJSON},
			{Source: "new_values", Aliases: []string{"newValues"}, Column: "new_values", Convert: AsJSON, Reverse: FromJSON},
			{Source: "ip_address", Aliases: []string{"ipAddress"}, Column: "ip_address", Convert: AsOptionalString},
			{Source: "user_agent", Aliases: []string{"userAgent"}, Column: "user_agent", Convert: AsOptionalString},
			{Source: "timestamp", Column: "timestamp", Convert: AsTime, DefaultFunc: now},
		},
	}
}

func teamCreationInviteCodesMapping() EntityMapping {
	return EntityMapping{
		Name:  "team_creation_invite_codes",
		Table: TableDescriptor{Name: TableTeamCreationInviteCodes},
		Fields: []FieldSpec{
			{Source: "code", Column: "code", Convert: AsString, Required: true},
			{Source: "description", Column: "description", Convert: AsOptionalString},
			{Source: "created_by", Aliases: []string{"createdBy"}, Column: "created_by", Convert: AsID},
			{Source: "used_by", Aliases: []string{"usedBy"}, Column: "used_by", Convert: AsOptionalID},
			{Source: "is_used", Aliases: []string{"isUsed"}, Column: "is_used", Convert: AsBool, Default: false},
			{Source: "created_at", Aliases: []string{"createdAt"}, Column: "created_at", Convert: AsTime, DefaultFunc: now},
			{Source: "used_at", Aliases: []string{"usedAt"}, Column: "used_at", Convert: AsTime},
		},
	}
}
