// Package migrations generates the bootstrap SQL the event store needs before
// its first stream is created: the stream registry table and the projection
// checkpoints table. Stream tables themselves are created by the store.
//
// To generate migrations, use the migrate-gen command:
//
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter sqlite -output migrations
//
// Or add a go generate directive to your code:
//
//	//go:generate go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter postgres -output ../../migrations
//
// Then run:
//
//	go generate ./...
package migrations
