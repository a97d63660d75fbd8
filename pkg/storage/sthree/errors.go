package sthree

import (
	"net/http"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/oneconcern/cloudstash/pkg/storage/status"
)

func filterErrNotExists(err error) error {
	if status.IsNotExist(err) {
		return nil
	}
	return err
}

// apiErrors qualifies S3 API errors
// https://docs.aws.amazon.com/sdk-for-go/api/aws/awserr/#RequestFailure
func apiErrors(err awserr.RequestFailure) error {
	switch err.StatusCode() {
	case http.StatusBadRequest:
		if err.Code() == "InvalidBucketName" {
			return status.ErrInvalidResource.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	case http.StatusUnauthorized:
		return status.ErrUnauthorized.Wrap(err)
	case http.StatusForbidden:
		return status.ErrForbidden.Wrap(err)
	case http.StatusNotFound:
		switch err.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound": // NotFound is returned by HEAD requests, and by minio
			return status.ErrNotExists.Wrap(err)
		default:
			// bucket, upload...
			return status.ErrNotFound.Wrap(err)
		}
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

// toSentinelErrors returns sentinel errors defined by the status package
// see: https://docs.aws.amazon.com/AmazonS3/latest/API/ErrorResponses.html#ErrorCodeList
func toSentinelErrors(err error) error {
	if err == nil {
		return nil
	}
	switch awsErr := err.(type) {
	case awserr.RequestFailure:
		return apiErrors(awsErr)
	case awserr.Error:
		if awsErr.Code() == s3.ErrCodeNoSuchKey {
			return status.ErrNotExists.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	default:
		return err
	}
}
