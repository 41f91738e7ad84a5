package storage

// Логические ключи приложения
const (
	KeyHistoryFasting   = "history_fasting"
	KeyFastingStartTime = "fasting_startTime"
	KeyFastingScheme    = "fasting_scheme"
	KeyUserName         = "user_name"
	KeyHasAcceptedTerms = "has_accepted_terms"
	KeyLegalAcceptance  = "legal_acceptance_v1"
	KeyThemeMode        = "theme_mode"
	KeySchemaVersion    = "schema_version"
	KeyLastBackupExport = "last_backup_export_at"
)
