package models

import "gorm.io/gorm"

// UserDevice stores an FCM registration token for push notifications.
type UserDevice struct {
	gorm.Model
	UserID   uint   `json:"userId" gorm:"not null;index"`
	FCMToken string `json:"fcmToken" gorm:"not null;uniqueIndex"`
	Platform string `json:"platform"` // ios, android
}

// TableName specifies the table name
func (UserDevice) TableName() string {
	return "user_devices"
}
