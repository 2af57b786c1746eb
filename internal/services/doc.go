// Package services holds the shared error taxonomy and context plumbing for
// the external collaborators the pipeline drives: the download daemon, the
// archiver binary, the catalog API, and object storage. Concrete clients live
// in subpackages.
package services
