// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Most aggregates in this codebase carry their own column mapping and persist directly;
// a dedicated model exists only where the domain shape and the table shape diverge,
// such as the user's backup-code list which is stored as a JSON column.
//
// Structure:
// - base.go: TenantAggregateModel, the shared column block
// - identity.go: UserModel and its mappers
package models
