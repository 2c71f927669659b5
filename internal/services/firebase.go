package services

import (
	"context"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
)

var (
	// FirebaseApp is the Firebase app instance
	FirebaseApp *firebase.App
	// MessagingClient is the Firebase Cloud Messaging client
	MessagingClient *messaging.Client
)

// InitFirebase initializes Firebase Admin SDK
func InitFirebase() error {
	ctx := context.Background()

	serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
	if serviceAccountPath == "" {
		log.Println("Warning: FIREBASE_SERVICE_ACCOUNT_PATH not set. Push notifications will be disabled.")
		return nil
	}

	opt := option.WithCredentialsFile(serviceAccountPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return fmt.Errorf("error initializing firebase app: %v", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("error getting messaging client: %v", err)
	}

	FirebaseApp = app
	MessagingClient = client

	log.Println("Firebase Cloud Messaging initialized successfully")
	return nil
}

// SendPushToUser delivers a push notification to every registered device of
// a user. Best effort: failures are logged and never bubble up into the
// rental operation that triggered them.
func SendPushToUser(db *gorm.DB, userID uint, title, body string, data map[string]string) {
	if MessagingClient == nil {
		return
	}

	var devices []models.UserDevice
	if err := db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		log.Printf("push: failed to load devices for user %d: %v", userID, err)
		return
	}

	ctx := context.Background()
	for _, device := range devices {
		msg := &messaging.Message{
			Token: device.FCMToken,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					Sound:     "default",
					ChannelID: "karhabty_rentals",
				},
			},
		}

		if _, err := MessagingClient.Send(ctx, msg); err != nil {
			log.Printf("push: send to user %d failed: %v", userID, err)
			// Stale tokens are pruned so we stop retrying dead devices.
			if messaging.IsUnregistered(err) {
				db.Delete(&models.UserDevice{}, device.ID)
			}
		}
	}
}
