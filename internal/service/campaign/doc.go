// Package campaign implements campaign lifecycle management.
//
// The service layer contains all business logic for creating, activating,
// cancelling, and completing campaigns. It depends on interfaces defined
// in this package and should never import from api/.
//
// Repository implementations live in repository/postgres/; batch
// partitioning is performed by the worker package through the Partitioner
// interface.
package campaign
