package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Handover evidence folders.
const (
	FolderContracts = "contracts"
	FolderCarPhotos = "car-photos"
	FolderOdometer  = "odometer"
)

var (
	s3Session *session.Session
	s3Client  *s3.S3
	uploader  *s3manager.Uploader
	useS3     bool
	baseURL   string
	uploadDir string
)

// InitStorage initializes either S3 or local storage based on configuration
func InitStorage() error {
	awsRegion := os.Getenv("AWS_REGION")
	awsAccessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	awsSecretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if awsRegion != "" && awsAccessKey != "" && awsSecretKey != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(awsRegion),
			Credentials: credentials.NewStaticCredentials(
				awsAccessKey,
				awsSecretKey,
				"",
			),
		})
		if err != nil {
			return fmt.Errorf("failed to create AWS session: %v", err)
		}

		s3Session = sess
		s3Client = s3.New(sess)
		uploader = s3manager.NewUploader(sess)
		useS3 = true
		return nil
	}

	// Fallback to local storage
	useS3 = false
	uploadDir = "/app/uploads"
	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	for _, folder := range []string{FolderContracts, FolderCarPhotos, FolderOdometer} {
		if err := os.MkdirAll(filepath.Join(uploadDir, folder), 0755); err != nil {
			return fmt.Errorf("failed to create upload directory: %v", err)
		}
	}

	return nil
}

// UploadEvidence stores a handover evidence image (contract, car photo,
// odometer shot) and returns the URL recorded on the handover artefact.
func UploadEvidence(file *multipart.FileHeader, folder string) (string, error) {
	if useS3 {
		return uploadToS3(file, folder)
	}
	return uploadLocally(file, folder)
}

// uploadToS3 uploads a file to AWS S3
func uploadToS3(file *multipart.FileHeader, folder string) (string, error) {
	bucketName := os.Getenv("AWS_S3_BUCKET")
	if bucketName == "" {
		return "", fmt.Errorf("S3 bucket name not configured")
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %v", err)
	}
	defer src.Close()

	buffer := bytes.NewBuffer(nil)
	if _, err := io.Copy(buffer, src); err != nil {
		return "", fmt.Errorf("failed to read file: %v", err)
	}

	contentType := http.DetectContentType(buffer.Bytes())

	fileExt := filepath.Ext(file.Filename)
	fileName := fmt.Sprintf("%s/%d%s", folder, time.Now().UnixNano(), fileExt)

	_, err = uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(fileName),
		Body:        bytes.NewReader(buffer.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %v", err)
	}

	awsRegion := os.Getenv("AWS_REGION")
	publicURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucketName, awsRegion, fileName)

	return publicURL, nil
}

// uploadLocally uploads a file to local storage
func uploadLocally(file *multipart.FileHeader, folder string) (string, error) {
	folderPath := filepath.Join(uploadDir, folder)
	if err := os.MkdirAll(folderPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder directory: %v", err)
	}

	fileExt := filepath.Ext(file.Filename)
	fileName := fmt.Sprintf("%d%s", time.Now().UnixNano(), fileExt)
	filePath := filepath.Join(folderPath, fileName)

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %v", err)
	}
	defer src.Close()

	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %v", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file: %v", err)
	}

	relativePath := filepath.Join(folder, fileName)
	return GetImageURL(relativePath), nil
}

// GetImageURL returns the full URL for an image
func GetImageURL(imagePath string) string {
	if useS3 {
		// S3 URLs are already complete
		return imagePath
	}

	imagePath = filepath.ToSlash(imagePath)
	return fmt.Sprintf("%s/uploads/%s", baseURL, imagePath)
}

// IsUsingS3 returns true if S3 storage is being used
func IsUsingS3() bool {
	return useS3
}
