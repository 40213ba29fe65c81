package model

import (
	"time"
)

type User struct {
	ID         uint64  `gorm:"primaryKey"`
	Name       string  `gorm:"type:varchar(100)"`
	Username   string  `gorm:"type:varchar(50);uniqueIndex:idx_username"`
	Email      string  `gorm:"type:varchar(100);uniqueIndex:idx_email"`
	Password   string  `gorm:"type:varchar(255)"`
	ProfileImg string  `gorm:"type:varchar(512)"`
	Bio        *string `gorm:"type:varchar(500)"`
	IsOnline   bool    `gorm:"type:tinyint(1);default:0"`
	LastSeen   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (User) TableName() string {
	return "users"
}
