package models

import "gorm.io/gorm"

// ReviewTargetKind tags what a review points at: the car itself, or the
// counterpart user in a given role.
type ReviewTargetKind string

const (
	ReviewTargetCar      ReviewTargetKind = "car"
	ReviewTargetUserRole ReviewTargetKind = "user_role"
)

// Review is a post-trip rating left by either party. One review per
// (rental, reviewer, target).
type Review struct {
	gorm.Model
	RentalID   uint             `json:"rentalId" gorm:"not null;index;uniqueIndex:idx_review_once,priority:1"`
	ReviewerID uint             `json:"reviewerId" gorm:"not null;uniqueIndex:idx_review_once,priority:2"`
	TargetKind ReviewTargetKind `json:"targetKind" gorm:"not null;uniqueIndex:idx_review_once,priority:3"`
	TargetID   uint             `json:"targetId" gorm:"not null"`
	Rating     float64          `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment    string           `json:"comment,omitempty"`
}

// TableName specifies the table name
func (Review) TableName() string {
	return "reviews"
}
