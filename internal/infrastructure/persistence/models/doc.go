// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: BaseModel and AggregateModel
// - stock.go: parts, variants and the movement ledger
// - destination.go: production items, sale items and BMR template lines
//
// Quantities and prices are stored as decimal(18,2). Time columns carry no
// explicit type so that the same models migrate on SQLite in tests.
package models
