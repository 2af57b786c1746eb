// Package catalog wraps the catalog HTTP API: listing the games eligible for
// migration and registering download resources and their files after upload.
package catalog
