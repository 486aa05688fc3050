package turnover

import "time"

// TurnoverRecord is an imported sale row. Rows are immutable once stored;
// ingestion re-sends overlapping batches, so the natural key dedupes them.
type TurnoverRecord struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	Period        time.Time `gorm:"column:period;uniqueIndex:idx_turnover_natural"`
	OperationType string    `gorm:"column:operation_type;uniqueIndex:idx_turnover_natural"`
	Product       string    `gorm:"column:product;uniqueIndex:idx_turnover_natural"`
	SellerID      string    `gorm:"column:seller_id;uniqueIndex:idx_turnover_natural"`
	BuyerID       string    `gorm:"column:buyer_id;uniqueIndex:idx_turnover_natural"`
	SellerName    string    `gorm:"column:seller_name"`
	BuyerName     string    `gorm:"column:buyer_name"`
	Volume        float64   `gorm:"column:volume"`
	VolumePartial float64   `gorm:"column:volume_partial"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

type UpsertRow struct {
	Period        time.Time `json:"period"`
	OperationType string    `json:"operation_type"`
	Product       string    `json:"product"`
	SellerID      string    `json:"seller_id"`
	BuyerID       string    `json:"buyer_id"`
	SellerName    string    `json:"seller_name"`
	BuyerName     string    `json:"buyer_name"`
	Volume        float64   `json:"volume"`
	VolumePartial float64   `json:"volume_partial"`
}
