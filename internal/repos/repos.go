// Package repos encapsulates every SQL query behind a typed method so the
// engines above never build raw query strings themselves. Each repo over a
// control-plane table owns exactly one entity from the data model, per the
// ownership rule that every persistent entity is mutated by exactly one
// component; BusinessRepo and ForensicRepo query the business tables, which
// no repo here owns.
package repos

import "gorm.io/gorm/clause"

func onConflictDoNothing(column string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		DoNothing: true,
	}
}
