package models

import "time"

type PlaidItem struct {
	ItemID      string    `json:"item_id"`
	AccessToken string    `json:"access_token"`
	CreatedAt   time.Time `json:"created_at"`
}
