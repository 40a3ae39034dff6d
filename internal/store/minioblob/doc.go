// Package minioblob stores encrypted media in an S3-compatible bucket
// using github.com/minio/minio-go/v7.
package minioblob
