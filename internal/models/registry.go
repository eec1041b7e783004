package models

// All returns every GORM model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Transaction{},
		&Budget{},
		&BudgetPeriod{},
		&AuditLog{},
	}
}
