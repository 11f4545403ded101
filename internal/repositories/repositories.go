// package repositories provides persistence layer implementations for all model types.
//
// The only persisted entity is the single-row token record, see [TokenRepository].
package repositories
