// Package pipeline plans and executes the migration. The planner turns the
// raw bucket listing and the catalog into persisted file items, caching each
// intermediate dataset so replanning resumes cheaply. The runner drives each
// file group through download, structural verification, extraction,
// repacking, upload, and catalog registration, writing every status change
// through to the store so an interrupted run resumes where it stopped.
package pipeline
