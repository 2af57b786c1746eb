// Command reshelve migrates game archives between object-storage buckets:
// plan matches the raw listing against the catalog and seeds the state store,
// run drives each file group through download, repack, and upload, and
// status reports persisted progress.
package main
