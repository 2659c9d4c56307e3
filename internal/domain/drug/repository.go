package drug

import "context"

// Repository is the persistence contract for Drug Records.
type Repository interface {
	// InsertIfAbsent stores d unless a record with the same item name exists.
	// inserted is false when another writer got there first. On insert d.ID is set.
	InsertIfAbsent(ctx context.Context, d *Drug) (inserted bool, err error)

	// FindByName returns ErrCodeDrugNotFound when no record matches.
	FindByName(ctx context.Context, itemName string) (*Drug, error)

	// FindByID returns ErrCodeDrugNotFound when no record matches.
	FindByID(ctx context.Context, id int64) (*Drug, error)

	// Update overwrites every attribute of record id. It reports false when no
	// row matched.
	Update(ctx context.Context, id int64, d *Drug) (bool, error)
}
