/*
Package session serializes access to persisted conversations.

Requests that continue the same conversation are run one at a time: a
reference-counted local mutex orders requests inside one process and an
optional distributed lock orders them across replicas. Requests for different
conversations never block each other.
*/
package session
