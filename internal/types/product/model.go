package product

import "time"

type Product struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Currency  string    `db:"currency" json:"currency"`
	Available bool      `db:"available" json:"available"`
	Stock     int       `db:"stock" json:"stock"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}
