package models

// All lists every model managed by gorm, in dependency order.
func All() []any {
	return []any{&User{}, &AuthToken{}, &Tag{}, &Ingredient{}, &Recipe{}, &AuditLog{}}
}
