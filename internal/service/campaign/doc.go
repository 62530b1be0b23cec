// Package campaign implements campaign lifecycle management and the
// snapshot ingestion boundary.
//
// The service layer contains the business logic for creating campaigns
// and feeding them observed channel windows. It depends on the
// repository interface defined in this package and should never import
// from api/.
//
// The repository implementation lives in repository/postgres/.
package campaign
